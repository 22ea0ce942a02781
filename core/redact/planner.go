package redact

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"ClearFM/model"
)

// DefaultPadding 每个命中词前后附加的静音余量，单位秒
const DefaultPadding = 0.15

// BannedWords 大小写不敏感的违禁词集合
type BannedWords map[string]struct{}

// NewBannedWords 从词列表构建违禁词集合
func NewBannedWords(words []string) BannedWords {
	set := make(BannedWords, len(words))
	for _, w := range words {
		w = normalize(w)
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// LoadBannedWords 从文件加载违禁词，每行一个，空行与 # 开头的行忽略
func LoadBannedWords(path string) (BannedWords, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开违禁词文件失败: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取违禁词文件失败: %w", err)
	}

	return NewBannedWords(words), nil
}

// Contains reports whether the normalized form of word is banned.
func (b BannedWords) Contains(word string) bool {
	_, ok := b[normalize(word)]
	return ok
}

// normalize 小写化并剥离两侧标点，转写结果常带逗号句号
func normalize(word string) string {
	word = strings.ToLower(strings.TrimSpace(word))
	return strings.TrimFunc(word, func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'', r == '-':
		return true
	case r >= 0x80: // 非 ASCII 字符原样保留
		return true
	}
	return false
}

// Plan 根据词级时间戳与违禁词集合计算最小静音区间列表
// 输出区间按开始时间升序且两两不重叠；输入词时间戳非法时报错
func Plan(words []model.TranscribedWord, banned BannedWords, pad float64) ([]model.MuteRange, error) {
	if pad < 0 {
		pad = DefaultPadding
	}

	var candidates []model.MuteRange
	for _, w := range words {
		if w.EndSec < w.StartSec {
			return nil, fmt.Errorf("词 %q 时间戳非法: end %.3f < start %.3f", w.Text, w.EndSec, w.StartSec)
		}
		if !banned.Contains(w.Text) {
			continue
		}

		start := w.StartSec - pad
		if start < 0 {
			start = 0
		}
		candidates = append(candidates, model.MuteRange{
			StartSec: start,
			EndSec:   w.EndSec + pad,
		})
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].StartSec < candidates[j].StartSec
	})

	// 合并重叠或相接的区间
	merged := candidates[:1]
	for _, c := range candidates[1:] {
		last := &merged[len(merged)-1]
		if c.StartSec <= last.EndSec {
			if c.EndSec > last.EndSec {
				last.EndSec = c.EndSec
			}
			continue
		}
		merged = append(merged, c)
	}

	return merged, nil
}
