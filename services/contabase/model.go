package contabase

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"contaminer/pkg/errutil"

	"gorm.io/gorm"
)

// ContaBase is one snapshot of the catalog prepared on the cluster. Exactly
// one snapshot is current (not obsolete) at any time.
type ContaBase struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	Obsolete   bool       `gorm:"column:obsolete;index;not null;default:false" json:"-"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"-"`
	Categories []Category `gorm:"foreignKey:ContaBaseID;constraint:OnDelete:CASCADE" json:"categories"`
}

type Category struct {
	ID                int64         `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ContaBaseID       int64         `gorm:"column:contabase_id;uniqueIndex:idx_category_number;not null" json:"-"`
	Number            int           `gorm:"column:number;uniqueIndex:idx_category_number;not null" json:"id"`
	Name              string        `gorm:"column:name;type:varchar(60);not null" json:"name"`
	SelectedByDefault bool          `gorm:"column:selected_by_default;not null;default:false" json:"selected_by_default"`
	Contaminants      []Contaminant `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"contaminants"`
}

type Contaminant struct {
	ID          int64        `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	CategoryID  int64        `gorm:"column:category_id;index;not null" json:"-"`
	Category    *Category    `gorm:"foreignKey:CategoryID" json:"-"`
	UniprotID   string       `gorm:"column:uniprot_id;type:varchar(10);index;not null" json:"uniprot_id"`
	ShortName   string       `gorm:"column:short_name;type:varchar(20);not null" json:"short_name"`
	LongName    string       `gorm:"column:long_name;type:varchar(100)" json:"long_name"`
	Sequence    string       `gorm:"column:sequence;type:text;not null" json:"sequence"`
	Organism    string       `gorm:"column:organism;type:varchar(50)" json:"organism"`
	Packs       []Pack       `gorm:"foreignKey:ContaminantID;constraint:OnDelete:CASCADE" json:"packs"`
	References  []Reference  `gorm:"foreignKey:ContaminantID;constraint:OnDelete:CASCADE" json:"references"`
	Suggestions []Suggestion `gorm:"foreignKey:ContaminantID;constraint:OnDelete:CASCADE" json:"suggestions"`
}

func (c *Contaminant) BeforeSave(tx *gorm.DB) error {
	c.UniprotID = strings.ToUpper(strings.TrimSpace(c.UniprotID))
	c.ShortName = strings.ToUpper(strings.TrimSpace(c.ShortName))
	if c.UniprotID == "" {
		return errutil.ValidationFailed("contaminant without uniprot id", nil)
	}
	return nil
}

func (c Contaminant) String() string {
	return c.UniprotID + " - " + c.ShortName
}

// Reference is a publication reporting the protein as a contaminant.
type Reference struct {
	ID            int64 `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ContaminantID int64 `gorm:"column:contaminant_id;index;not null" json:"-"`
	PubmedID      int   `gorm:"column:pubmed_id;not null" json:"pubmed_id"`
}

func (r *Reference) BeforeSave(tx *gorm.DB) error {
	if r.PubmedID <= 0 {
		return errutil.ValidationFailed(fmt.Sprintf("invalid pubmed id %d", r.PubmedID), nil)
	}
	return nil
}

// Suggestion credits the person who reported the contaminant.
type Suggestion struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ContaminantID int64  `gorm:"column:contaminant_id;index;not null" json:"-"`
	Name          string `gorm:"column:name;type:varchar(200);not null" json:"name"`
}

var structurePattern = regexp.MustCompile(`^(\d+-mer|domains?)$`)

type Pack struct {
	ID            int64        `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ContaminantID int64        `gorm:"column:contaminant_id;uniqueIndex:idx_pack_number;not null" json:"-"`
	Contaminant   *Contaminant `gorm:"foreignKey:ContaminantID" json:"-"`
	Number        int          `gorm:"column:number;uniqueIndex:idx_pack_number;not null" json:"number"`
	Structure     string       `gorm:"column:structure;type:varchar(15);not null" json:"structure"`
	Models        []Model      `gorm:"foreignKey:PackID;constraint:OnDelete:CASCADE" json:"models"`
}

func (p *Pack) BeforeSave(tx *gorm.DB) error {
	if !structurePattern.MatchString(p.Structure) {
		return errutil.ValidationFailed(fmt.Sprintf("pack %d has invalid structure %q", p.Number, p.Structure), nil)
	}
	return nil
}

// Coverage is the best share of the contaminant sequence covered by one of
// the pack models, in percent. Contaminant and Models must be loaded.
func (p *Pack) Coverage() int {
	if p.Contaminant == nil || len(p.Contaminant.Sequence) == 0 {
		return 0
	}
	best := 0
	for _, m := range p.Models {
		if c := m.NbResidues * 100 / len(p.Contaminant.Sequence); c > best {
			best = c
		}
	}
	return best
}

// Identity is the best sequence identity among the pack models, in percent.
func (p *Pack) Identity() int {
	best := 0
	for _, m := range p.Models {
		if m.Identity > best {
			best = m.Identity
		}
	}
	return best
}

type Model struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	PackID     int64  `gorm:"column:pack_id;index;not null" json:"-"`
	PDBCode    string `gorm:"column:pdb_code;type:varchar(4);not null" json:"template"`
	Chain      string `gorm:"column:chain;type:varchar(10)" json:"chain"`
	Domain     *int   `gorm:"column:domain" json:"domain"`
	NbResidues int    `gorm:"column:nb_residues;not null" json:"residues"`
	Identity   int    `gorm:"column:identity;not null" json:"identity"`
}

func (m *Model) BeforeSave(tx *gorm.DB) error {
	m.PDBCode = strings.ToUpper(m.PDBCode)
	if m.Identity < 0 || m.Identity > 100 {
		return errutil.ValidationFailed(fmt.Sprintf("model %s identity %d is not a percentage", m.PDBCode, m.Identity), nil)
	}
	if m.NbResidues < 0 {
		return errutil.ValidationFailed(fmt.Sprintf("model %s has negative residue count", m.PDBCode), nil)
	}
	return nil
}

func (ContaBase) TableName() string { return "contabases" }
