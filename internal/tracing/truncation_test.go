package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"王", "*"},
		{"张三", "张*"},
		{"王小明", "王*明"},
		{"myemail@example.com", "my***************om"},
		{"13812345678", "13*******78"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, MaskPII(c.in))
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))

	long := strings.Repeat("a", 100) + strings.Repeat("b", 100)
	got := TruncateString(long, 21)
	assert.Contains(t, got, "...")
	assert.LessOrEqual(t, len([]rune(got)), 21)
}

func TestSafeAttributeValue(t *testing.T) {
	// 属性名含敏感关键字时掩码
	masked := SafeAttributeValue("candidate_email", "someone@example.com", DefaultMaxLength)
	assert.NotContains(t, masked, "someone")
	assert.Contains(t, masked, "*")

	// 普通属性只做长度截断
	plain := SafeAttributeValue("pipeline.stage", "resume", DefaultMaxLength)
	assert.Equal(t, "resume", plain)
}

func TestSafeEmailBody(t *testing.T) {
	body := strings.Repeat("尊敬的候选人，", 100)
	got := SafeEmailBody(body)
	assert.LessOrEqual(t, len([]rune(got)), MaxEmailBodyLength)
	assert.Contains(t, got, "...")
}

func TestSafeSQL(t *testing.T) {
	sql := "SELECT * FROM applications WHERE process_id = '" + strings.Repeat("x", 600) + "'"
	got := SafeSQL(sql)
	assert.LessOrEqual(t, len([]rune(got)), MaxSQLLength)
}
