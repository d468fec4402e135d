package constants

// 招聘流程三个阶段的名称，同时用作ScheduledJob主键的前缀
const (
	StageResume    = "resume"    // 简历筛选阶段
	StageOA        = "oa"        // 在线笔试阶段
	StageInterview = "interview" // 线下面试/终选阶段
)

// 各阶段的晋级分数线
const (
	ResumeShortlistThreshold = 50 // 简历匹配分数线
	OAClearThreshold         = 60 // 在线笔试分数线
	FinalSelectThreshold     = 70 // 终选加权综合分数线
)

// 终选综合分的权重: 0.4*oa + 0.3*tech + 0.3*hr
const (
	FinalWeightOA   = 0.4
	FinalWeightTech = 0.3
	FinalWeightHR   = 0.3
)
