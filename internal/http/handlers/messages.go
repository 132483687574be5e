package handlers

import "strings"

// quotaExceededMessage localizes the out-of-credits message. The English text
// passed in already names the resource ("image credits" / "video credits"), so
// the Indonesian variant re-derives the noun from it.
func quotaExceededMessage(locale, english string) string {
	if locale != "id" {
		return english
	}
	noun := "gambar"
	if strings.Contains(english, "video") {
		noun = "video"
	}
	return "kredit " + noun + " kamu sudah habis"
}

func billingLimitMessage(locale string) string {
	if locale == "id" {
		return "layanan pembuatan media sedang tidak tersedia karena batas penagihan penyedia"
	}
	return "the generation service is temporarily unavailable due to a provider billing limit"
}
