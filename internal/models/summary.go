package models

// DataSummary describes the population of turns an experiment ran over.
type DataSummary struct {
	NumTurns  int            `json:"num_turns"`
	Datasets  map[string]int `json:"datasets"`
	Splits    map[string]int `json:"splits"`
	UniqueDBs int            `json:"unique_dbs"`
}
