package orchestrator

import (
	"fmt"
	"time"
)

// Clock 时间源，所有截止时间比较都经过它，测试时可注入固定时间
type Clock interface {
	Now() time.Time
}

// SystemClock 固定时区的系统时钟
// 截止时间在同一时区下比较，避免服务器本地时区漂移导致提前或延后触发
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock 按配置的时区名创建系统时钟
func NewSystemClock(timezone string) (*SystemClock, error) {
	if timezone == "" {
		timezone = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("加载时区 %s 失败: %w", timezone, err)
	}
	return &SystemClock{loc: loc}, nil
}

func (c *SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}
