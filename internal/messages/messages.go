package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/okisilev/tg-askeza/types"
)

const ParseModeHTML = "HTML"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func formatRub(kopeks int64) string {
	if kopeks%100 == 0 {
		return fmt.Sprintf("%d ₽", kopeks/100)
	}
	return fmt.Sprintf("%d.%02d ₽", kopeks/100, kopeks%100)
}

func formatDate(t time.Time) string {
	return t.Format("02.01.2006 15:04")
}

func productTitle(p types.ProductType) string {
	switch p {
	case types.ProductAskeza:
		return "Аскеза"
	case types.ProductNumerology:
		return "Нумерология"
	default:
		return string(p)
	}
}

func StartWelcome(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "друг"
	}
	return fmt.Sprintf("👋 <b>Привет, %s!</b>\n\n"+
		"Здесь можно оформить доступ к закрытому каналу и чату.\n"+
		"Выберите действие в меню ниже.", Escape(name))
}

func MainMenuText() string {
	return "🏠 <b>Главное меню</b>\nВыберите действие:"
}

func ErrorDefault() string {
	return "🚫 <b>Ошибка</b>\nПопробуйте ещё раз."
}

func ErrorUnknownCommand() string {
	return "❓ <b>Команда не найдена</b>"
}

func PaymentOptionsText() string {
	return "💳 <b>Оплата доступа</b>\nВыберите продукт:"
}

func PaymentCreated(title string, kopeks int64) string {
	return fmt.Sprintf("💳 <b>%s</b>\n\n"+
		"💰 Сумма к оплате: <b>%s</b>\n\n"+
		"Нажмите «Оплатить», чтобы перейти к оплате.\n"+
		"После оплаты нажмите «Проверить статус».", Escape(title), formatRub(kopeks))
}

func PaymentCreateFailed() string {
	return "🚫 <b>Не удалось создать платёж</b>\nПлатёжный сервис недоступен, попробуйте позже."
}

func PaymentStillPending() string {
	return "⏳ <b>Платёж ещё не оплачен</b>\nЗавершите оплату и нажмите «Проверить статус» ещё раз."
}

func PaymentCanceledNotice() string {
	return "🚫 <b>Платёж отменён</b>\nВы можете создать новый платёж в меню оплаты."
}

func NoPendingPayment() string {
	return "ℹ️ <b>Нет ожидающих платежей</b>"
}

func AccessGranted(p types.ProductType, expiresAt time.Time) string {
	return fmt.Sprintf("✅ <b>Оплата прошла!</b>\n\n"+
		"🎉 Вам открыт доступ: <b>%s</b>\n"+
		"📅 Действует до: <b>%s</b>\n\n"+
		"Кнопки для входа в закрытый канал и чат — в главном меню.", productTitle(p), formatDate(expiresAt.Local()))
}

func AccessExpired(p types.ProductType) string {
	return fmt.Sprintf("⏰ <b>Доступ завершён</b>\n\n"+
		"Срок доступа «%s» истёк.\n"+
		"Продлить можно в меню оплаты.", productTitle(p))
}

func AccessExpiringSoon(p types.ProductType, expiresAt time.Time) string {
	days := int(time.Until(expiresAt).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return fmt.Sprintf("⏰ <b>Доступ скоро закончится</b>\n\n"+
		"«%s» истекает через %d дн. — %s.\n"+
		"Продлить можно в меню оплаты.", productTitle(p), days, formatDate(expiresAt.Local()))
}

func AccessStatusActive(grants []types.AccessGrant) string {
	var b strings.Builder
	b.WriteString("✅ <b>Доступ активен</b>\n")
	for _, g := range grants {
		fmt.Fprintf(&b, "\n• %s — до %s", productTitle(g.Product), formatDate(g.ExpiresAt.Local()))
	}
	return b.String()
}

func AccessStatusNone() string {
	return "🔒 <b>Доступ не оформлен</b>\nОформить можно в меню оплаты."
}

func InviteLinkMessage(title, url string) string {
	return fmt.Sprintf("🔗 <b>%s</b>\nВаша персональная ссылка (одно использование):\n%s", Escape(title), url)
}

func InviteUnavailable() string {
	return "🚫 <b>Не удалось создать приглашение</b>\nПопробуйте позже или напишите в поддержку."
}

func PaymentHistoryHeader() string {
	return "📋 <b>Ваши платежи</b>\n"
}

func PaymentHistoryLine(p types.Payment) string {
	status := ""
	switch p.Status {
	case types.PaymentSucceeded:
		status = "✅ оплачен"
	case types.PaymentCanceled:
		status = "🚫 отменён"
	default:
		status = "⏳ ожидает оплаты"
	}
	return fmt.Sprintf("• %s — %s — %s (%s)", productTitle(p.Product), formatRub(p.Amount), status, formatDate(p.CreatedAt.Local()))
}

func PaymentHistoryEmpty() string {
	return "📋 <b>Платежей пока нет</b>"
}

func FAQText() string {
	return "❓ <b>Вопрос/Ответ</b>\n\n" +
		"<b>Что такое Аскеза?</b>\n" +
		"Закрытый канал и чат с практиками на 30 дней.\n\n" +
		"<b>Что входит в Нумерологию?</b>\n" +
		"Персональный нумерологический разбор и доступ в закрытый чат.\n\n" +
		"<b>Как оплатить?</b>\n" +
		"Картой через ЮKassa: нажмите «Оплатить доступ» и следуйте подсказкам.\n\n" +
		"<b>Когда откроется доступ?</b>\n" +
		"Сразу после оплаты бот пришлёт ссылки-приглашения."
}
