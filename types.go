package metadefender

// DefaultCompletionThreshold is the progress percentage at which an analysis is
// treated as finished. The service is known to stall at 99 with every engine
// already reporting, so 100 is not required.
const DefaultCompletionThreshold = 99

// Submission is the response to a file upload.
type Submission struct {
	// DataID is the handle used to poll for the analysis.
	DataID string `json:"data_id"`
	// Status is the service's queue status, e.g. "inqueue".
	Status string `json:"status"`
	// InQueue is the number of files ahead of this one.
	InQueue int `json:"in_queue"`
	// QueuePriority is the queue the file was placed in, e.g. "normal".
	QueuePriority string `json:"queue_priority"`
}

// LookupResult is a hash lookup hit. Report is nil when the service returned
// only a data_id.
type LookupResult struct {
	DataID string
	Report *AnalysisReport
}

// AnalysisReport is the state of an analysis, complete or in progress.
type AnalysisReport struct {
	DataID      string      `json:"data_id"`
	ScanResults ScanResults `json:"scan_results"`
	FileInfo    *FileInfo   `json:"file_info,omitempty"`
}

// ScanResults holds the per-engine results and the aggregate verdict.
type ScanResults struct {
	// ScanDetails maps engine name to that engine's result.
	ScanDetails map[string]EngineResult `json:"scan_details"`
	// ProgressPercentage is 0-100.
	ProgressPercentage int `json:"progress_percentage"`
	// ScanAllResultA is the overall verdict text, e.g. "No Threat Detected".
	ScanAllResultA string `json:"scan_all_result_a"`
	// ScanAllResultI is the overall verdict code; 1 means infected.
	ScanAllResultI   int `json:"scan_all_result_i"`
	TotalAVs         int `json:"total_avs"`
	TotalDetectedAVs int `json:"total_detected_avs"`
}

// EngineResult is one engine's finding.
type EngineResult struct {
	ThreatFound string `json:"threat_found"`
	ScanResultI int    `json:"scan_result_i"`
	DefTime     string `json:"def_time"`
}

// FileInfo is the file metadata the service attaches to a report.
type FileInfo struct {
	DisplayName string `json:"display_name"`
	FileSize    int64  `json:"file_size"`
	FileType    string `json:"file_type_description"`
	SHA256      string `json:"sha256"`
}

// Progress returns the analysis progress percentage.
func (r *AnalysisReport) Progress() int {
	return r.ScanResults.ProgressPercentage
}

// Verdict returns the overall verdict text.
func (r *AnalysisReport) Verdict() string {
	return r.ScanResults.ScanAllResultA
}

// IsInfected returns true if the aggregate verdict reports a threat.
func (r *AnalysisReport) IsInfected() bool {
	return r.ScanResults.ScanAllResultI == 1
}

// IsComplete reports whether progress has reached threshold.
func (r *AnalysisReport) IsComplete(threshold int) bool {
	return r.Progress() >= threshold
}
