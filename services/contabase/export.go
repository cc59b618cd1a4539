package contabase

import (
	"encoding/json"
	"fmt"
	"strings"

	"contaminer/pkg/errutil"
)

// export mirrors the JSON printed by `contaminer display`.
type export struct {
	Categories []struct {
		ID                int    `json:"id"`
		Name              string `json:"name"`
		SelectedByDefault bool   `json:"selected_by_default"`
		Contaminants      []struct {
			UniprotID string `json:"uniprot_id"`
			ShortName string `json:"short_name"`
			LongName  string `json:"long_name"`
			Sequence  string `json:"sequence"`
			Organism  string `json:"organism"`
			Packs     []struct {
				Number    int    `json:"number"`
				Structure string `json:"structure"`
				Models    []struct {
					Template string `json:"template"`
					Chain    string `json:"chain"`
					Domain   *int   `json:"domain"`
					Residues int    `json:"residues"`
					Identity int    `json:"identity"`
				} `json:"models"`
			} `json:"packs"`
			References []struct {
				PubmedID int `json:"pubmed_id"`
			} `json:"references"`
			Suggestions []struct {
				Name string `json:"name"`
			} `json:"suggestions"`
		} `json:"contaminants"`
	} `json:"categories"`
}

// ParseExport turns the catalog export into unsaved categories and checks
// the constraints the rest of the system relies on.
func ParseExport(raw []byte) ([]Category, error) {
	var e export
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, errutil.ValidationFailed("catalog export is not valid json", err)
	}
	if len(e.Categories) == 0 {
		return nil, errutil.ValidationFailed("catalog export has no category", nil)
	}

	var details []errutil.Detail
	seen := make(map[string]bool)
	categories := make([]Category, 0, len(e.Categories))

	for _, ec := range e.Categories {
		category := Category{
			Number:            ec.ID,
			Name:              ec.Name,
			SelectedByDefault: ec.SelectedByDefault,
		}

		for _, ect := range ec.Contaminants {
			uniprot := strings.ToUpper(strings.TrimSpace(ect.UniprotID))
			switch {
			case uniprot == "":
				details = append(details, errutil.Detail{Field: ec.Name, Message: "contaminant without uniprot_id"})
				continue
			case seen[uniprot]:
				details = append(details, errutil.Detail{Field: uniprot, Message: "contaminant listed twice"})
				continue
			}
			seen[uniprot] = true

			contaminant := Contaminant{
				UniprotID: uniprot,
				ShortName: ect.ShortName,
				LongName:  ect.LongName,
				Sequence:  ect.Sequence,
				Organism:  ect.Organism,
			}

			packNumbers := make(map[int]bool)
			for _, ep := range ect.Packs {
				if packNumbers[ep.Number] {
					details = append(details, errutil.Detail{Field: uniprot, Message: fmt.Sprintf("pack %d listed twice", ep.Number)})
					continue
				}
				packNumbers[ep.Number] = true

				pack := Pack{Number: ep.Number, Structure: ep.Structure}
				for _, em := range ep.Models {
					if em.Residues > len(ect.Sequence) {
						details = append(details, errutil.Detail{
							Field:   uniprot,
							Message: fmt.Sprintf("model %s has more residues than the sequence", em.Template),
						})
					}
					pack.Models = append(pack.Models, Model{
						PDBCode:    em.Template,
						Chain:      em.Chain,
						Domain:     em.Domain,
						NbResidues: em.Residues,
						Identity:   em.Identity,
					})
				}
				contaminant.Packs = append(contaminant.Packs, pack)
			}

			for _, er := range ect.References {
				if er.PubmedID <= 0 {
					details = append(details, errutil.Detail{Field: uniprot, Message: fmt.Sprintf("invalid pubmed id %d", er.PubmedID)})
					continue
				}
				contaminant.References = append(contaminant.References, Reference{PubmedID: er.PubmedID})
			}
			for _, es := range ect.Suggestions {
				if name := strings.TrimSpace(es.Name); name != "" {
					contaminant.Suggestions = append(contaminant.Suggestions, Suggestion{Name: name})
				}
			}
			category.Contaminants = append(category.Contaminants, contaminant)
		}
		categories = append(categories, category)
	}

	if len(details) > 0 {
		return nil, errutil.ValidationFailed("catalog export is inconsistent", nil, errutil.WithDetails(details...))
	}
	return categories, nil
}
