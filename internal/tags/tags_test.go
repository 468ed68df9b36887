package tags

import "testing"

func TestStandardize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"空输入", "", ""},
		{"纯空白", "  \n\t\n", ""},
		{"换行分隔", "1girl\nsolo\nlong_hair", "1girl, solo, long hair"},
		{"逗号分隔", "1girl, solo,long_hair", "1girl, solo, long hair"},
		{"混合分隔", "1girl, solo\nlong_hair", "1girl, solo, long hair"},
		{"下划线和连字符", "a_b-c", "a b c"},
		{"括号转义", "1girl\n(smiling)", `1girl, \(smiling\)`},
		{"已转义括号不重复转义", `\(smiling\)`, `\(smiling\)`},
		{"去重保序", "solo\n1girl\nsolo", "solo, 1girl"},
		{"下划线归一后去重", "long_hair\nlong hair", "long hair"},
		{"空项丢弃", "a,,b,\n\nc", "a, b, c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Standardize(tc.in)
			if got != tc.want {
				t.Fatalf("期望 %q，实际 %q", tc.want, got)
			}
		})
	}
}

func TestStandardize_Idempotent(t *testing.T) {
	inputs := []string{
		"1girl\nsolo\nlong_hair",
		"(smiling), long_hair, a-b",
		"x, y, z",
	}
	for _, in := range inputs {
		once := Standardize(in)
		twice := Standardize(once)
		if once != twice {
			t.Fatalf("不幂等：f(%q)=%q，f(f)=%q", in, once, twice)
		}
	}
}

func TestCleanEdit_RemoveExact(t *testing.T) {
	got := CleanEdit("a, b, c", EditSpec{RemoveExact: []string{"b"}})
	if got != "a, c" {
		t.Fatalf("期望 %q，实际 %q", "a, c", got)
	}

	// 精确匹配：不是子串删除。
	got = CleanEdit("ab, b", EditSpec{RemoveExact: []string{"b"}})
	if got != "ab" {
		t.Fatalf("期望 %q，实际 %q", "ab", got)
	}
}

func TestCleanEdit_RemoveContaining(t *testing.T) {
	got := CleanEdit("long hair, short hair, solo", EditSpec{RemoveContaining: []string{"hair"}})
	if got != "solo" {
		t.Fatalf("期望 %q，实际 %q", "solo", got)
	}
}

func TestCleanEdit_AddSkipsExisting(t *testing.T) {
	got := CleanEdit("a, b", EditSpec{Add: []string{"b", "c"}})
	if got != "a, b, c" {
		t.Fatalf("期望 %q，实际 %q", "a, b, c", got)
	}
}

func TestCleanEdit_RemoveThenAddSameTag(t *testing.T) {
	// 先删后加：删掉的标签可以被重新加入。
	got := CleanEdit("a, b", EditSpec{RemoveExact: []string{"b"}, Add: []string{"b"}})
	if got != "a, b" {
		t.Fatalf("期望 %q，实际 %q", "a, b", got)
	}
}

func TestCleanEdit_EmptySourceStaysEmpty(t *testing.T) {
	// 添加只作用于非空源文本。
	got := CleanEdit("   ", EditSpec{Add: []string{"a"}})
	if got != "" {
		t.Fatalf("期望空串，实际 %q", got)
	}
}

func TestCleanEdit_AllRemoved(t *testing.T) {
	got := CleanEdit("a, b", EditSpec{RemoveContaining: []string{""}, RemoveExact: []string{"a", "b"}})
	if got != "" {
		t.Fatalf("期望空串，实际 %q", got)
	}
}
