package model

import (
	"path"
	"regexp"
	"strings"
)

// archiveExts lists recognized archive suffixes, longest first so
// ".tar.bz2" wins over a hypothetical ".bz2" match.
var archiveExts = []string{".tar.bz2", ".tar.gz", ".tgz", ".zip"}

// familyPatterns maps each category to the model-family prefixes/infixes
// recognized in release asset names. An asset whose name matches none of
// its category's patterns is rejected (excluded from the snapshot).
//
// The patterns follow the upstream release naming: sherpa-style archives
// for recognition models, vits/matcha/kokoro bundles for synthesis,
// silero/ten for VAD, and so on.
var familyPatterns = map[Category][]*regexp.Regexp{
	CategorySTT: {
		regexp.MustCompile(`^sherpa-onnx-(streaming-)?(zipformer|paraformer|conformer|transducer|ctc)`),
		regexp.MustCompile(`^sherpa-onnx-whisper-`),
		regexp.MustCompile(`^sherpa-onnx-(nemo|moonshine|sense-voice|telespeech|dolphin|fire-red-asr)`),
		regexp.MustCompile(`^(icefall|wenet)-`),
	},
	CategoryTTS: {
		regexp.MustCompile(`^vits-piper-`),
		regexp.MustCompile(`^vits-`),
		regexp.MustCompile(`^matcha-`),
		regexp.MustCompile(`^kokoro-`),
		regexp.MustCompile(`^kitten-`),
	},
	CategoryVAD: {
		regexp.MustCompile(`^silero[-_]vad`),
		regexp.MustCompile(`^ten-vad`),
	},
	CategoryDiarization: {
		regexp.MustCompile(`segmentation`),
		regexp.MustCompile(`speaker.*(embedding|recognition)`),
		regexp.MustCompile(`^(3dspeaker|nemo.*titanet|wespeaker)`),
	},
	CategoryEnhancement: {
		regexp.MustCompile(`^gtcrn`),
		regexp.MustCompile(`denoise`),
	},
	CategorySeparation: {
		regexp.MustCompile(`^spleeter`),
		regexp.MustCompile(`^uvr`),
	},
}

// subtypeTags is checked in order; the first tag contained in the id
// becomes the subtype.
var subtypeTags = map[Category][]string{
	CategorySTT:         {"zipformer", "paraformer", "whisper", "conformer", "transducer", "sense-voice", "moonshine", "nemo", "ctc", "dolphin", "telespeech", "fire-red-asr"},
	CategoryTTS:         {"piper", "matcha", "kokoro", "kitten", "vits"},
	CategoryVAD:         {"silero", "ten-vad"},
	CategoryDiarization: {"segmentation", "embedding", "titanet", "wespeaker", "3dspeaker"},
	CategoryEnhancement: {"gtcrn", "denoise"},
	CategorySeparation:  {"spleeter", "uvr"},
}

var (
	quantPattern = regexp.MustCompile(`(?:^|[-_.])(int8|int4|fp16|q8|q4|8bit|4bit)(?:$|[-_.])`)
	sizeTiers    = []string{"tiny", "small", "base", "medium", "large", "giga"}

	// localePattern matches BCP-47-ish locale tokens like "en_US" that
	// piper voices embed ("vits-piper-en_US-lessac-medium").
	localePattern = regexp.MustCompile(`(?:^|-)([a-z]{2})_([A-Z]{2})(?:-|$)`)

	// langToken matches a bare two-letter language code segment.
	langToken = regexp.MustCompile(`(?:^|[-.])(en|zh|ja|ko|de|fr|es|ru|pt|it|ar|th|vi|nl|uk|fa|be|cs|da|el|fi|hu|is|ka|kk|lb|ne|no|pl|ro|sk|sl|sr|sv|sw|tr)(?:[-.]|$)`)
)

// Classify turns a raw asset descriptor into typed metadata, or rejects it
// when the name matches no recognized family for the category.
//
// Classification is deterministic: the same input always yields the same
// output, so snapshots can be diffed without churn. Derived fields that
// cannot be parsed degrade to Unknown instead of failing.
func Classify(cat Category, a Asset) (Meta, bool) {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return Meta{}, false
	}

	lower := strings.ToLower(name)
	if !matchesFamily(cat, lower) {
		return Meta{}, false
	}

	id, archiveExt := SplitAssetName(name)

	m := Meta{
		ID:           id,
		DisplayName:  displayName(id),
		DownloadURL:  a.URL,
		Bytes:        a.Size,
		ArchiveExt:   archiveExt,
		FileName:     name,
		RemoteDigest: strings.ToLower(a.Digest),
		Subtype:      deriveSubtype(cat, strings.ToLower(id)),
		Languages:    deriveLanguages(id),
		Quant:        deriveQuant(strings.ToLower(id)),
		SizeTier:     deriveSizeTier(strings.ToLower(id)),
	}
	return m, true
}

// SplitAssetName derives the stable model id from an asset filename and
// returns the archive extension when the asset is an archive. A
// single-file asset's id is the filename minus its final extension; the
// full filename is preserved separately in Meta.FileName.
func SplitAssetName(name string) (id, archiveExt string) {
	for _, ext := range archiveExts {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext), ext
		}
	}
	if ext := path.Ext(name); ext != "" {
		return strings.TrimSuffix(name, ext), ""
	}
	return name, ""
}

func matchesFamily(cat Category, lower string) bool {
	for _, re := range familyPatterns[cat] {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

func deriveSubtype(cat Category, lowerID string) string {
	for _, tag := range subtypeTags[cat] {
		if strings.Contains(lowerID, tag) {
			return tag
		}
	}
	return Unknown
}

func deriveQuant(lowerID string) string {
	if m := quantPattern.FindStringSubmatch(lowerID); m != nil {
		return m[1]
	}
	return Unknown
}

func deriveSizeTier(lowerID string) string {
	for _, tier := range sizeTiers {
		// "tiny.en" and "-tiny-" both count; bare substring matching
		// would confuse "largest"-style words, so require a boundary.
		if hasToken(lowerID, tier) {
			return tier
		}
	}
	return Unknown
}

func deriveLanguages(id string) []string {
	var langs []string
	seen := map[string]bool{}
	add := func(l string) {
		if l != "" && !seen[l] {
			seen[l] = true
			langs = append(langs, l)
		}
	}

	if m := localePattern.FindStringSubmatch(id); m != nil {
		add(m[1] + "_" + m[2])
	}
	lower := strings.ToLower(id)
	if strings.Contains(lower, "multi") || strings.Contains(lower, "bilingual") {
		add("multi")
	}
	for _, m := range langToken.FindAllStringSubmatch(lower, -1) {
		add(m[1])
	}
	return langs
}

// hasToken reports whether tok occurs in s delimited by '-', '_', '.' or a
// string boundary.
func hasToken(s, tok string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], tok)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || isSep(s[i-1])
		afterIdx := i + len(tok)
		after := afterIdx == len(s) || isSep(s[afterIdx])
		if before && after {
			return true
		}
		idx = i + 1
	}
}

func isSep(b byte) bool { return b == '-' || b == '_' || b == '.' }

func displayName(id string) string {
	return strings.Join(strings.FieldsFunc(id, func(r rune) bool {
		return r == '-' || r == '_'
	}), " ")
}
