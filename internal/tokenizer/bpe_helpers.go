package tokenizer

import (
	"slices"
	"strings"
)

// Pair is an adjacent symbol pair considered for a BPE merge.
type Pair struct {
	A string
	B string
}

// textPart is a run of input text. Special parts map to a single token id
// and bypass BPE.
type textPart struct {
	text      string
	isSpecial bool
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func getPairs(word []string) map[Pair]struct{} {
	pairs := make(map[Pair]struct{}, max(len(word)-1, 0))
	for i := 1; i < len(word); i++ {
		pairs[Pair{A: word[i-1], B: word[i]}] = struct{}{}
	}
	return pairs
}

// mergePair joins every non-overlapping occurrence of pair, left to right.
func mergePair(word []string, pair Pair) []string {
	out := make([]string, 0, len(word))
	for i := 0; i < len(word); i++ {
		if i+1 < len(word) && word[i] == pair.A && word[i+1] == pair.B {
			out = append(out, pair.A+pair.B)
			i++
			continue
		}
		out = append(out, word[i])
	}
	return out
}

// collectSpecials returns the control tokens of a vocabulary, longest
// first so that splitSpecials prefers the longest match.
func collectSpecials(tokens []string) []string {
	var out []string
	for _, t := range tokens {
		if isSpecialToken(t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int { return len(b) - len(a) })
	return out
}

// isSpecialToken matches the <|name|> convention for control tokens.
func isSpecialToken(s string) bool {
	return len(s) >= 4 && strings.HasPrefix(s, "<|") && strings.HasSuffix(s, "|>")
}

// splitSpecials cuts text around occurrences of specials. Only offsets
// that start with "<|" are tried, since every special has that prefix.
func splitSpecials(text string, specials []string) []textPart {
	if len(specials) == 0 || !strings.Contains(text, "<|") {
		return []textPart{{text: text}}
	}
	var parts []textPart
	start := 0
	for i := 0; i < len(text); {
		next := strings.Index(text[i:], "<|")
		if next < 0 {
			break
		}
		i += next
		match := ""
		for _, sp := range specials {
			if strings.HasPrefix(text[i:], sp) {
				match = sp
				break
			}
		}
		if match == "" {
			i += 2
			continue
		}
		if i > start {
			parts = append(parts, textPart{text: text[start:i]})
		}
		parts = append(parts, textPart{text: match, isSpecial: true})
		i += len(match)
		start = i
	}
	if start < len(text) {
		parts = append(parts, textPart{text: text[start:]})
	}
	return parts
}

// bytesToUnicode builds the GPT-2 byte <-> printable rune table. Printable
// Latin-1 bytes map to themselves; the rest are shifted above U+00FF in
// byte order.
func bytesToUnicode() (map[byte]string, map[string]byte) {
	var printable [256]bool
	for _, span := range [][2]int{{'!', '~'}, {'¡', '¬'}, {'®', 'ÿ'}} {
		for b := span[0]; b <= span[1]; b++ {
			printable[b] = true
		}
	}

	enc := make(map[byte]string, 256)
	dec := make(map[string]byte, 256)
	shifted := 0
	for b := range 256 {
		r := rune(b)
		if !printable[b] {
			r = rune(256 + shifted)
			shifted++
		}
		enc[byte(b)] = string(r)
		dec[string(r)] = byte(b)
	}
	return enc, dec
}
