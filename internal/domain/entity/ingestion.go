package entity

// OutcomeStatus итог обработки одной области
type OutcomeStatus string

const (
	OutcomePersisted OutcomeStatus = "persisted" // создана новая запись
	OutcomeDuplicate OutcomeStatus = "duplicate" // номер уже был сохранён
	OutcomeSkipped   OutcomeStatus = "skipped"   // область отброшена, см. SkipReason
)

// RegionOutcome результат по одной области в порядке выдачи детектора.
type RegionOutcome struct {
	Index       int             `json:"index"`
	Region      Region          `json:"region"`
	Status      OutcomeStatus   `json:"status"`
	Candidate   *PlateCandidate `json:"candidate,omitempty"`
	PlateID     uint            `json:"plate_id,omitempty"`
	BlobRef     string          `json:"blob_ref,omitempty"`
	BlobMissing bool            `json:"blob_missing,omitempty"`
	SkipReason  FailureKind     `json:"skip_reason,omitempty"`
	Detail      string          `json:"detail,omitempty"`
}

// CanonicalText возвращает нормализованный номер или пустую строку для пропущенной области.
func (o RegionOutcome) CanonicalText() string {
	if o.Candidate == nil {
		return ""
	}
	return o.Candidate.CanonicalText
}

// IngestionResult ответ конвейера на один снимок.
type IngestionResult struct {
	RequestID   string          `json:"request_id"`
	ImageWidth  int             `json:"image_width"`
	ImageHeight int             `json:"image_height"`
	Outcomes    []RegionOutcome `json:"outcomes"`
}

// Count возвращает число областей с данным статусом.
func (r *IngestionResult) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}
