package main

import "fmt"

// DefaultCurrency é a moeda padrão das cobranças KHQR
const DefaultCurrency = "USD"

// FormatKHQRPayload monta a string KHQR apresentada ao comprador.
// Formato: KHQR|MerchantID|Amount|Currency|OrderID|Description
// Versão simplificada do padrão Bakong; o formato real é mais complexo.
func FormatKHQRPayload(merchantID string, amountCents int64, currency string, orderID int64) string {
	return fmt.Sprintf("KHQR|%s|%s|%s|%d|Order #%d",
		merchantID, FormatAmount(amountCents), currency, orderID, orderID)
}

// FormatAmount converte centavos para o formato decimal com duas casas
func FormatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
