package voice

import (
	"math/rand"
	"strings"
	"time"
)

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// GoodnightPhrase is one entry in the multilingual farewell table.
type GoodnightPhrase struct {
	Lang string
	Code string
	Text string
}

var goodnightPhrases = []GoodnightPhrase{
	{"English", "en", "Goodnight!"},
	{"Spanish", "es", "Buenas noches."},
	{"French", "fr", "Bonne nuit."},
	{"Portuguese", "pt", "Boa noite."},
	{"Italian", "it", "Buona notte."},
	{"German", "de", "Gute Nacht."},
	{"Dutch", "nl", "Goedenacht."},
	{"Swedish", "sv", "God natt."},
	{"Polish", "pl", "Dobranoc."},
	{"Russian", "ru", "Спокойной ночи."},
	{"Greek", "el", "Καληνύχτα."},
	{"Turkish", "tr", "İyi geceler."},
	{"Arabic", "ar", "تصبح على خير."},
	{"Hindi", "hi", "शुभ रात्रि।"},
	{"Japanese", "ja", "おやすみ。"},
	{"Korean", "ko", "안녕히 주무세요."},
	{"Chinese (Simplified)", "zh", "晚安。"},
}

// GoodnightMessage builds a short multilingual farewell: count phrases
// (clamped to 1..8) drawn without replacement, optionally excluding
// English, joined after a fixed persona lead-in. Deterministic for a
// fixed rng.
func GoodnightMessage(rng *rand.Rand, count int, includeEnglish bool) string {
	pool := goodnightPhrases
	if !includeEnglish {
		pool = make([]GoodnightPhrase, 0, len(goodnightPhrases))
		for _, p := range goodnightPhrases {
			if p.Code != "en" {
				pool = append(pool, p)
			}
		}
	}
	if count < 1 {
		count = 1
	}
	if count > 8 {
		count = 8
	}
	if count > len(pool) {
		count = len(pool)
	}

	// Sample without replacement from a scratch copy.
	scratch := make([]GoodnightPhrase, len(pool))
	copy(scratch, pool)
	lines := make([]string, 0, count)
	for len(scratch) > 0 && len(lines) < count {
		idx := rng.Intn(len(scratch))
		p := scratch[idx]
		scratch = append(scratch[:idx], scratch[idx+1:]...)
		lines = append(lines, p.Text+" ("+p.Lang+")")
	}

	// Keep it short for TTS.
	return "Okay chat… " + strings.Join(lines, "  ")
}
