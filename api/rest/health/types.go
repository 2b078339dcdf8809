package health

type Response struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
