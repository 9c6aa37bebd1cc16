package worker

// ExportNotifyMessage 通过 Redis PubSub 推送给前端的导出结果。
type ExportNotifyMessage struct {
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message,omitempty"`
}
