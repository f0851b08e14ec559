package dto

// ProcessQueueResponse reports per-row outcomes of one queue processor invocation
type ProcessQueueResponse struct {
	Busy      bool `json:"busy,omitempty"`
	Processed int  `json:"processed"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Requeued  int  `json:"requeued"`
	Push      int  `json:"push"`
	Email     int  `json:"email"`
}

// Add folds another partition's counts into r
func (r *ProcessQueueResponse) Add(o ProcessQueueResponse) {
	r.Processed += o.Processed
	r.Sent += o.Sent
	r.Failed += o.Failed
	r.Skipped += o.Skipped
	r.Requeued += o.Requeued
	r.Push += o.Push
	r.Email += o.Email
}
