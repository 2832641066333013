package config

// SupportedLanguages maps language codes to display names.
var SupportedLanguages = map[string]string{
	"zh":  "Chinese",
	"en":  "English",
	"ja":  "Japanese",
	"yue": "Cantonese",
	"ko":  "Korean",
	"de":  "German",
	"fr":  "French",
	"ru":  "Russian",
	"it":  "Italian",
	"es":  "Spanish",
}

// SupportedTranslations maps a source language to the target languages
// the engine can translate it into.
var SupportedTranslations = map[string][]string{
	"zh":  {"en", "ja", "ko"},
	"en":  {"zh", "ja", "ko"},
	"ja":  {"zh", "en"},
	"yue": {"zh", "en"},
	"ko":  {"zh", "en"},
	"de":  {"zh", "en"},
	"fr":  {"zh", "en"},
	"ru":  {"zh", "en"},
	"it":  {"zh", "en"},
	"es":  {"zh", "en"},
}
