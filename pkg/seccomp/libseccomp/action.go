package libseccomp

// MsgHandle 是 Trace 动作携带的消息，表示由跟踪器处理该系统调用
// 取值与跟踪器约定的消息编号一致（1 保留给禁止）
const MsgHandle uint16 = 2
