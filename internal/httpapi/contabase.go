package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"contaminer/pkg/errutil"
	"contaminer/services/contabase"

	"github.com/gin-gonic/gin"
)

type categoryView struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	SelectedByDefault bool   `json:"selected_by_default"`
	Contaminants      int    `json:"contaminants"`
}

type contaminantView struct {
	UniprotID   string   `json:"uniprot_id"`
	ShortName   string   `json:"short_name"`
	LongName    string   `json:"long_name"`
	Sequence    string   `json:"sequence"`
	Organism    string   `json:"organism"`
	Category    int      `json:"category"`
	Packs       int      `json:"packs"`
	References  []int    `json:"references"`
	Suggestions []string `json:"suggestions"`
}

func toCategoryView(c *contabase.Category) categoryView {
	return categoryView{
		ID:                c.Number,
		Name:              c.Name,
		SelectedByDefault: c.SelectedByDefault,
		Contaminants:      len(c.Contaminants),
	}
}

func toContaminantView(category int, ct *contabase.Contaminant) contaminantView {
	references := make([]int, 0, len(ct.References))
	for _, r := range ct.References {
		references = append(references, r.PubmedID)
	}
	suggestions := make([]string, 0, len(ct.Suggestions))
	for _, s := range ct.Suggestions {
		suggestions = append(suggestions, s.Name)
	}
	return contaminantView{
		UniprotID:   ct.UniprotID,
		ShortName:   ct.ShortName,
		LongName:    ct.LongName,
		Sequence:    ct.Sequence,
		Organism:    ct.Organism,
		Category:    category,
		Packs:       len(ct.Packs),
		References:  references,
		Suggestions: suggestions,
	}
}

// GetContaBase returns the whole current catalog.
func (h *Handler) GetContaBase(c *gin.Context) {
	cb, err := h.catalog.Catalog(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cb)
}

func (h *Handler) ListCategories(c *gin.Context) {
	cb, err := h.catalog.Catalog(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]categoryView, 0, len(cb.Categories))
	for i := range cb.Categories {
		out = append(out, toCategoryView(&cb.Categories[i]))
	}
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

func (h *Handler) GetCategory(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		_ = c.Error(errutil.BadRequest("category id must be a number", err))
		return
	}
	cb, err := h.catalog.Catalog(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	for i := range cb.Categories {
		if cb.Categories[i].Number == number {
			c.JSON(http.StatusOK, toCategoryView(&cb.Categories[i]))
			return
		}
	}
	_ = c.Error(errutil.NotFound("category "+c.Param("id")+" not found", nil))
}

func (h *Handler) ListContaminants(c *gin.Context) {
	cb, err := h.catalog.Catalog(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]contaminantView, 0)
	for _, cat := range cb.Categories {
		for i := range cat.Contaminants {
			out = append(out, toContaminantView(cat.Number, &cat.Contaminants[i]))
		}
	}
	c.JSON(http.StatusOK, gin.H{"contaminants": out})
}

func (h *Handler) GetContaminant(c *gin.Context) {
	uniprotID := strings.ToUpper(c.Param("uniprot_id"))
	cb, err := h.catalog.Catalog(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	for _, cat := range cb.Categories {
		for i := range cat.Contaminants {
			if cat.Contaminants[i].UniprotID == uniprotID {
				c.JSON(http.StatusOK, toContaminantView(cat.Number, &cat.Contaminants[i]))
				return
			}
		}
	}
	_ = c.Error(errutil.NotFound("contaminant "+uniprotID+" not found", nil))
}
