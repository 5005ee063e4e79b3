package models

// ImportedProject is the outcome of parsing a workbook upload: a fresh
// stakeholder registry and transaction log with regenerated internal ids.
type ImportedProject struct {
	ProjectName  string        `json:"projectName"`
	Stakeholders []Stakeholder `json:"stakeholders"`
	Transactions []Transaction `json:"transactions"`
}
