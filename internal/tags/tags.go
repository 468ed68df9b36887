package tags

import "strings"

// EditSpec 描述一次手动标签编辑：先删后加。
//
// 约束：
// - RemoveExact 按整个标签精确匹配（大小写敏感）
// - RemoveContaining 按子串匹配，命中任意一个即删除该标签
// - Add 按给定顺序追加，且只追加当前不存在的标签
type EditSpec struct {
	RemoveExact      []string
	RemoveContaining []string
	Add              []string
}

// Standardize 把自由格式的标注文本规范化为数据集的标准标签格式：
// 逗号+空格连接、去重、下划线/连字符替换为空格、未转义括号加反斜杠转义。
//
// 纯函数且幂等：f(f(x)) == f(x)。空白输入返回空串。
func Standardize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	// 按换行拆分；行内含逗号时再按逗号拆分。
	// 换行分隔与逗号分隔的混合输入因此被统一支持。
	raw := make([]string, 0, 16)
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, ",") {
			for _, t := range strings.Split(line, ",") {
				if t = strings.TrimSpace(t); t != "" {
					raw = append(raw, t)
				}
			}
			continue
		}
		if t := strings.TrimSpace(line); t != "" {
			raw = append(raw, t)
		}
	}

	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ReplaceAll(t, "_", " ")
		t = strings.ReplaceAll(t, "-", " ")
		t = strings.TrimSpace(escapeParens(t))
		if t != "" {
			out = append(out, t)
		}
	}

	return strings.Join(dedup(out), ", ")
}

// CleanEdit 编辑一段已是逗号分隔格式的标签文本。
//
// 明确的边界：空白输入直接返回空串——即使 spec.Add 非空也不追加
// （添加只作用于非空源文本）。
func CleanEdit(text string, spec EditSpec) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	out := make([]string, 0, 16)
	for _, t := range strings.Split(text, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}

	if len(spec.RemoveExact) > 0 {
		exact := make(map[string]struct{}, len(spec.RemoveExact))
		for _, r := range spec.RemoveExact {
			exact[r] = struct{}{}
		}
		kept := out[:0]
		for _, t := range out {
			if _, hit := exact[t]; !hit {
				kept = append(kept, t)
			}
		}
		out = kept
	}

	if len(spec.RemoveContaining) > 0 {
		kept := out[:0]
		for _, t := range out {
			hit := false
			for _, sub := range spec.RemoveContaining {
				if sub != "" && strings.Contains(t, sub) {
					hit = true
					break
				}
			}
			if !hit {
				kept = append(kept, t)
			}
		}
		out = kept
	}

	if len(spec.Add) > 0 {
		// 去重判定基于删除之后的当前集合（大小写敏感、精确匹配）。
		existing := make(map[string]struct{}, len(out))
		for _, t := range out {
			existing[t] = struct{}{}
		}
		for _, t := range spec.Add {
			if _, ok := existing[t]; ok {
				continue
			}
			out = append(out, t)
			existing[t] = struct{}{}
		}
	}

	final := out[:0]
	for _, t := range out {
		if t = strings.TrimSpace(t); t != "" {
			final = append(final, t)
		}
	}

	return strings.Join(dedup(final), ", ")
}

// escapeParens 为未转义的 '(' / ')' 补反斜杠。
// “是否已转义”只看紧邻的前一个字符，因此对已转义文本重复执行不会二次转义。
func escapeParens(s string) string {
	if !strings.ContainsAny(s, "()") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c == '(' || c == ')') && (i == 0 || s[i-1] != '\\') {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// dedup 保留首次出现的顺序去重。
func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
