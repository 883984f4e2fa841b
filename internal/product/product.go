package product

import (
	"errors"
	"time"

	"github.com/okisilev/tg-askeza/types"
)

var ErrUnknownProduct = errors.New("unknown product")

// Info describes one purchasable product: what it costs, how long the
// access lasts and which chats the buyer gets invited to.
type Info struct {
	Type        types.ProductType
	Title       string
	Description string
	// PriceKopeks is the price in kopeks (990.00 RUB = 99000).
	PriceKopeks    int64
	AccessDuration time.Duration
	// ChannelID and ChatID are the gated chats. Zero means the product
	// does not include that chat.
	ChannelID int64
	ChatID    int64
}

type Catalog struct {
	items map[types.ProductType]Info
}

func NewCatalog(privateChannelID, privateChatID int64) *Catalog {
	return &Catalog{
		items: map[types.ProductType]Info{
			types.ProductAskeza: {
				Type:           types.ProductAskeza,
				Title:          "Аскеза",
				Description:    "Доступ к Аскезе на 30 дней",
				PriceKopeks:    99000,
				AccessDuration: 30 * 24 * time.Hour,
				ChannelID:      privateChannelID,
				ChatID:         privateChatID,
			},
			types.ProductNumerology: {
				Type:           types.ProductNumerology,
				Title:          "Нумерология",
				Description:    "Нумерологический разбор",
				PriceKopeks:    249000,
				AccessDuration: 30 * 24 * time.Hour,
				ChatID:         privateChatID,
			},
		},
	}
}

func (c *Catalog) Get(t types.ProductType) (Info, error) {
	info, ok := c.items[t]
	if !ok {
		return Info{}, ErrUnknownProduct
	}
	return info, nil
}

func (c *Catalog) All() []Info {
	out := make([]Info, 0, len(c.items))
	for _, t := range []types.ProductType{types.ProductAskeza, types.ProductNumerology} {
		if info, ok := c.items[t]; ok {
			out = append(out, info)
		}
	}
	return out
}
