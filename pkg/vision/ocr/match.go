package ocr

import (
	"fmt"
	"image"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"
)

// DefaultSimilarity 相似度匹配阈值
const DefaultSimilarity = 0.8

// MaxWindow 候选窗口最多包含的连续单词数
const MaxWindow = 6

// Normalize NFC 组合后只保留英文字母、数字和韩文音节，转小写
func Normalize(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r >= 0xAC00 && r <= 0xD7A3:
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}

// IsPattern 目标包含 * 或 . 时按通配处理
func IsPattern(target string) bool {
	return strings.ContainsAny(target, "*.")
}

// CompilePattern 通配目标转正则：按 * 切分，每段规范化后转义，* 变为 .*
func CompilePattern(target string) (*regexp.Regexp, error) {
	segments := strings.Split(target, "*")
	for i, seg := range segments {
		segments[i] = regexp.QuoteMeta(Normalize(seg))
	}
	return regexp.Compile("(?i)" + strings.Join(segments, ".*"))
}

// SimilarityRatio 1 - 编辑距离/较长串长度（按字符计）。两个空串为 1。
func SimilarityRatio(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// Matcher 单个目标的匹配器
type Matcher struct {
	target     string
	normalized string
	pattern    *regexp.Regexp
	threshold  float64
}

// NewMatcher 创建匹配器，threshold <= 0 时使用默认阈值
func NewMatcher(target string, threshold float64) (*Matcher, error) {
	if strings.TrimSpace(target) == "" {
		return nil, ErrInvalidTarget
	}
	if threshold <= 0 {
		threshold = DefaultSimilarity
	}
	m := &Matcher{target: target, normalized: Normalize(target), threshold: threshold}

	if IsPattern(target) {
		re, err := CompilePattern(target)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
		}
		m.pattern = re
		return m, nil
	}
	if m.normalized == "" {
		return nil, fmt.Errorf("%w: %q 规范化后为空", ErrInvalidTarget, target)
	}
	return m, nil
}

// Match 判断一段文字是否命中
func (m *Matcher) Match(text string) (float64, Kind, bool) {
	cleaned := Normalize(text)
	if m.pattern != nil {
		if m.pattern.MatchString(cleaned) {
			return 1.0, KindPattern, true
		}
		return 0, "", false
	}
	if cleaned == m.normalized {
		return 1.0, KindExact, true
	}
	sim := SimilarityRatio(cleaned, m.normalized)
	if sim >= m.threshold {
		return sim, KindSimilarity, true
	}
	return 0, "", false
}

// Candidate 命中的候选窗口
type Candidate struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
	Kind       Kind
}

// Candidates 从每个非空单词开始，取 1..MaxWindow 个连续单词拼接（无分隔符）后匹配
func (m *Matcher) Candidates(tokens []Token) []Candidate {
	var result []Candidate
	for i := range tokens {
		if tokens[i].Blank() {
			continue
		}
		for j := 0; j < MaxWindow && i+j < len(tokens); j++ {
			window := tokens[i : i+j+1]

			var text strings.Builder
			var box image.Rectangle
			for _, t := range window {
				text.WriteString(t.Text)
				if t.Blank() {
					continue
				}
				box = box.Union(t.Box)
			}

			conf, kind, ok := m.Match(text.String())
			if !ok {
				continue
			}
			result = append(result, Candidate{Text: text.String(), Box: box, Confidence: conf, Kind: kind})
		}
	}
	return result
}

// Best 置信度最高的候选，相同时取先出现的
func Best(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}
