package bot

import (
	"fmt"
	"html"

	"github.com/Fi44er/miniapp_gateway/utils"
)

func esc(s string) string {
	return html.EscapeString(s)
}

func PaymentCreditedAdmin(orderID string, telegramID int64, packageTitle string, coins int64, amount string, balance int64) string {
	return fmt.Sprintf(
		"✅ <b>Новая оплата</b>\n\n"+
			"👤 Пользователь: <code>%d</code>\n"+
			"📦 Пакет: %s (%d монет)\n"+
			"💰 Сумма: %s ₽\n"+
			"💼 Баланс после: %d\n"+
			"🧾 Заказ: <code>%s</code>",
		telegramID, esc(packageTitle), coins, esc(amount), balance, esc(orderID),
	)
}

func PaymentCreditedUser(coins, balance int64) string {
	return fmt.Sprintf("✅ Оплата прошла успешно! Начислено <b>%d</b> монет.\nВаш баланс: <b>%d</b>", coins, balance)
}

func AmountMismatchAdmin(orderID, paid, expected string) string {
	return fmt.Sprintf(
		"⚠️ Сумма оплаты не совпадает с ценой пакета\n🧾 Заказ: <code>%s</code>\nОплачено: %s ₽, ожидалось: %s ₽",
		esc(orderID), esc(paid), esc(expected),
	)
}

func UnknownPackageAdmin(orderID string, telegramID int64, packageID, amount string) string {
	return fmt.Sprintf(
		"❗️ <b>Неизвестный пакет</b> <code>%s</code>\n"+
			"🧾 Заказ: <code>%s</code>\n👤 Пользователь: <code>%d</code>\n💰 Сумма: %s ₽\n\n"+
			"Оплата получена, начислите монеты вручную.",
		esc(packageID), esc(orderID), telegramID, esc(amount),
	)
}

func CreditFailedAdmin(orderID string, telegramID int64, packageID string, coins int64, cause error) string {
	return fmt.Sprintf(
		"🔥 <b>Ошибка начисления</b>\n"+
			"🧾 Заказ: <code>%s</code>\n👤 Пользователь: <code>%d</code>\n📦 Пакет: %s (%d монет)\n"+
			"Ошибка: <code>%s</code>\n\nНачислите монеты вручную.",
		esc(orderID), telegramID, esc(packageID), coins, esc(utils.Truncate(cause.Error(), 500)),
	)
}

func MissingIdentityAdmin(orderID, customerExtra string) string {
	return fmt.Sprintf(
		"❗️ <b>Не удалось определить пользователя</b>\n🧾 Заказ: <code>%s</code>\nДоп. данные: %s",
		esc(orderID), esc(utils.Truncate(customerExtra, 300)),
	)
}

func InvalidSignatureAdmin(orderID, remoteAddr string) string {
	return fmt.Sprintf(
		"🚫 <b>Неверная подпись вебхука</b>\n🧾 Заказ: <code>%s</code>\nIP: <code>%s</code>\n\nЗапрос отклонён, начисление не выполнено.",
		esc(orderID), esc(remoteAddr),
	)
}

func WebhookFailedAdmin(cause error) string {
	return fmt.Sprintf("🔥 <b>Ошибка обработки вебхука</b>\n<code>%s</code>", esc(utils.Truncate(cause.Error(), 500)))
}

func ReferralBonusUser(bonus int64, buyerID int64) string {
	return fmt.Sprintf("🎁 Вам начислено <b>%d</b> монет за покупку вашего реферала (<code>%d</code>).", bonus, buyerID)
}

func PostPublishedUser(caption, instagramPostID string) string {
	return fmt.Sprintf(
		"📸 Пост опубликован в Instagram!\n%s\nID: <code>%s</code>",
		esc(utils.Truncate(caption, 100)), esc(instagramPostID),
	)
}

func PostFailedUser(reason string) string {
	return fmt.Sprintf("❌ Не удалось опубликовать пост.\nПричина: %s", esc(utils.Truncate(reason, 300)))
}
