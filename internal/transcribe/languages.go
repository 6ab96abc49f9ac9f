package transcribe

import "strings"

// languageCodes maps human readable language names to ISO 639-1 codes
// accepted by the transcription API. "auto" leaves detection to the model.
var languageCodes = map[string]string{
	"auto detect": "",
	"auto":        "",
	"english":     "en",
	"spanish":     "es",
	"french":      "fr",
	"german":      "de",
	"chinese":     "zh",
	"japanese":    "ja",
	"korean":      "ko",
	"russian":     "ru",
	"portuguese":  "pt",
	"italian":     "it",
	"hindi":       "hi",
	"arabic":      "ar",
	"bengali":     "bn",
	"turkish":     "tr",
	"vietnamese":  "vi",
	"thai":        "th",
	"polish":      "pl",
	"ukrainian":   "uk",
	"romanian":    "ro",
	"dutch":       "nl",
	"swedish":     "sv",
	"finnish":     "fi",
	"norwegian":   "no",
	"danish":      "da",
	"czech":       "cs",
	"greek":       "el",
	"hungarian":   "hu",
	"indonesian":  "id",
	"malay":       "ms",
	"persian":     "fa",
	"swahili":     "sw",
	"tamil":       "ta",
	"telugu":      "te",
	"marathi":     "mr",
	"kannada":     "kn",
	"malayalam":   "ml",
	"gujarati":    "gu",
	"punjabi":     "pa",
	"urdu":        "ur",
	"hebrew":      "he",
	"bulgarian":   "bg",
	"croatian":    "hr",
	"slovak":      "sk",
	"slovenian":   "sl",
	"lithuanian":  "lt",
	"latvian":     "lv",
	"estonian":    "et",
	"icelandic":   "is",
	"afrikaans":   "af",
	"macedonian":  "mk",
	"nepali":      "ne",
	"sinhala":     "si",
	"burmese":     "my",
	"khmer":       "km",
	"lao":         "lo",
	"mongolian":   "mn",
	"amharic":     "am",
	"yoruba":      "yo",
	"igbo":        "ig",
	"zulu":        "zu",
}

var codeSet = func() map[string]bool {
	set := make(map[string]bool, len(languageCodes))
	for _, code := range languageCodes {
		if code != "" {
			set[code] = true
		}
	}
	return set
}()

// LanguageCode resolves a language given either as a name ("Russian")
// or as a code ("ru"). Unknown values fall back to auto detection.
func LanguageCode(language string) string {
	normalized := strings.ToLower(strings.TrimSpace(language))
	if normalized == "" {
		return ""
	}
	if code, ok := languageCodes[normalized]; ok {
		return code
	}
	if codeSet[normalized] {
		return normalized
	}
	return ""
}
