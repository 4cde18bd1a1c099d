package domain

// NotificationStatus 预占结果通知的状态。
type NotificationStatus string

const (
	NotifySuccess NotificationStatus = "SUCCESS"
	NotifyFailure NotificationStatus = "FAILURE"
	NotifyExpired NotificationStatus = "EXPIRED"
)

// ReservationNotification 发往订单流程的预占结果事件。
// 接收方必须按幂等处理：同一事件可能投递多次（至少一次语义）。
type ReservationNotification struct {
	OrderRef string             `json:"order_ref"`
	Status   NotificationStatus `json:"status"`
	Message  string             `json:"message"`
}
