package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// NotifyModulePrefix 通知模块
	NotifyModulePrefix = "notify"
	// StageModulePrefix 阶段执行模块
	StageModulePrefix = "stage"

	// EntitySent 已发送通知标记实体
	EntitySent = "sent"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyNotificationSent 通知去重标记 (STRING, SETNX)
	// 格式: app:notify:sent:{processID}:{stage}:{candidateID}
	KeyNotificationSent = AppPrefix + ":" + NotifyModulePrefix + ":" + EntitySent + ":%s:%s:%s"

	// KeyStageExecutionLock 阶段执行分布式锁 (STRING)
	// 格式: app:stage:lock:{processID}:{stage}
	KeyStageExecutionLock = AppPrefix + ":" + StageModulePrefix + ":" + EntityLock + ":%s:%s"
)
