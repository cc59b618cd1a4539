package task

// Result is the public view of one task.
type Result struct {
	UniprotID      string  `json:"uniprot_id"`
	PackNumber     int     `json:"pack_nb"`
	SpaceGroup     string  `json:"space_group"`
	Status         string  `json:"status"`
	Percent        int     `json:"percent"`
	QFactor        float64 `json:"q_factor"`
	FilesAvailable bool    `json:"files_available"`
}

// ToDict summarizes the task. Pack and Pack.Contaminant must be loaded.
func (t *Task) ToDict(a *Artifacts) Result {
	r := Result{
		SpaceGroup: t.SpaceGroup,
		Status:     t.Status.Display(),
		Percent:    t.PercentValue(),
		QFactor:    t.QFactorValue(),
	}
	if t.Pack != nil {
		r.PackNumber = t.Pack.Number
		if t.Pack.Contaminant != nil {
			r.UniprotID = t.Pack.Contaminant.UniprotID
		}
	}
	if a != nil && t.HasFinalFiles() {
		label := Label(r.UniprotID, r.PackNumber, t.SpaceGroup)
		r.FilesAvailable = a.Available(t.JobID, label, "pdb") && a.Available(t.JobID, label, "mtz")
	}
	return r
}
