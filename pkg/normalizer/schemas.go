package normalizer

import (
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	Kind_Revenue  Kind = "revenue"
	Kind_Labor    Kind = "labor"
	Kind_Jobs     Kind = "jobs"
	Kind_Material Kind = "material"
)

func AllKinds() []Kind {
	return []Kind{Kind_Revenue, Kind_Labor, Kind_Jobs, Kind_Material}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown data kind '%s', expected one of: revenue, labor, jobs, material", s)
}

// Canonical column names.
const (
	Col_OrderNum    = "OrderNum"
	Col_OrderDate   = "OrderDate"
	Col_ShipDate    = "ShipDate"
	Col_PartNum     = "PartNum"
	Col_ProdCode    = "ProdCode"
	Col_PartClass   = "PartClass"
	Col_ProdLine    = "ProdLine"
	Col_DocExtPrice = "DocExtPrice"
	Col_OpenOrder   = "OpenOrder"

	Col_JobNum      = "JobNum"
	Col_JobClosed   = "JobClosed"
	Col_LaborDate   = "LaborDate"
	Col_PayrollDate = "PayrollDate"
	Col_ClockInDate = "ClockInDate"
	Col_ResourceGrp = "ResourceGrp"
	Col_LaborHrs    = "LaborHrs"
	Col_BurdenHrs   = "BurdenHrs"

	Col_IssueDate = "IssueDate"
	Col_TranDate  = "TranDate"
	Col_ExtCost   = "ExtCost"
)

// ExportSchema is one known layout of an ERP export: the column aliases it
// uses, keyed by source column name.
type ExportSchema struct {
	Name    string
	Version int
	Aliases map[string]string
}

func (es ExportSchema) Id() string {
	return fmt.Sprintf("%s-v%d", es.Name, es.Version)
}

// KindSchema describes the canonical shape of one data kind.
type KindSchema struct {
	Kind      Kind
	Canonical []string
	Required  []string

	// DateColumns are tried per row in order; empty for kinds without a date.
	DateColumns []string

	Exports []ExportSchema
}

var registry = map[Kind]KindSchema{
	Kind_Revenue: {
		Kind: Kind_Revenue,
		Canonical: []string{
			Col_OrderNum, Col_OrderDate, Col_ShipDate, Col_PartNum, Col_ProdCode,
			Col_PartClass, Col_ProdLine, Col_DocExtPrice, Col_OpenOrder,
		},
		Required:    []string{Col_DocExtPrice},
		DateColumns: []string{Col_OrderDate, Col_ShipDate},
		Exports: []ExportSchema{
			{
				Name:    "epicor-order-baq",
				Version: 1,
				Aliases: map[string]string{
					"Order_OrderNum":          Col_OrderNum,
					"OrderHed_OrderNum":       Col_OrderNum,
					"Order_OrderDate":         Col_OrderDate,
					"OrderHed_OrderDate":      Col_OrderDate,
					"Part_PartNum":            Col_PartNum,
					"OrderDtl_PartNum":        Col_PartNum,
					"Part_ProdCode":           Col_ProdCode,
					"OrderDtl_ProdCode":       Col_ProdCode,
					"Part_PartClass":          Col_PartClass,
					"OrderDtl_DocExtPriceDtl": Col_DocExtPrice,
					"OrderHed_OpenOrder":      Col_OpenOrder,
				},
			},
			{
				Name:    "epicor-gross-margin-baq",
				Version: 1,
				Aliases: map[string]string{
					"ShipHead_ShipDate":    Col_ShipDate,
					"ShipHead_PackNum":     Col_OrderNum,
					"ProdGrup_Description": Col_ProdCode,
					"Calculated_Amount":    Col_DocExtPrice,
				},
			},
		},
	},
	Kind_Labor: {
		Kind: Kind_Labor,
		Canonical: []string{
			Col_JobNum, Col_LaborDate, Col_PayrollDate, Col_ClockInDate,
			Col_ResourceGrp, Col_LaborHrs, Col_BurdenHrs,
		},
		Required:    []string{Col_JobNum, Col_LaborHrs},
		DateColumns: []string{Col_PayrollDate, Col_LaborDate, Col_ClockInDate},
		Exports: []ExportSchema{
			{
				Name:    "epicor-labor-baq",
				Version: 1,
				Aliases: map[string]string{
					"LaborDtl_JobNum":        Col_JobNum,
					"LaborDtl_ClockInDate":   Col_LaborDate,
					"LaborDtl_PayrollDate":   Col_PayrollDate,
					"LaborDtl_ResourceGrpID": Col_ResourceGrp,
					"LaborDtl_LaborHrs":      Col_LaborHrs,
					"LaborDtl_BurdenHrs":     Col_BurdenHrs,
				},
			},
		},
	},
	Kind_Jobs: {
		Kind: Kind_Jobs,
		Canonical: []string{
			Col_JobNum, Col_OrderNum, Col_PartNum, Col_ProdCode, Col_PartClass,
			Col_ProdLine, Col_JobClosed,
		},
		Required: []string{Col_JobNum},
		Exports: []ExportSchema{
			{
				Name:    "epicor-jobhead-baq",
				Version: 1,
				Aliases: map[string]string{
					"JobHead_JobNum":    Col_JobNum,
					"JobHead_OrderNum":  Col_OrderNum,
					"JobHead_PartNum":   Col_PartNum,
					"Part_ProdCode":     Col_ProdCode,
					"JobHead_ProdCode":  Col_ProdCode,
					"Part_PartClass":    Col_PartClass,
					"JobHead_JobClosed": Col_JobClosed,
				},
			},
		},
	},
	Kind_Material: {
		Kind:        Kind_Material,
		Canonical:   []string{Col_JobNum, Col_IssueDate, Col_TranDate, Col_PartNum, Col_ExtCost},
		Required:    []string{Col_JobNum, Col_ExtCost},
		DateColumns: []string{Col_IssueDate, Col_TranDate},
		Exports: []ExportSchema{
			{
				Name:    "epicor-jobmtl-baq",
				Version: 1,
				Aliases: map[string]string{
					"JobMtl_JobNum":    Col_JobNum,
					"JobMtl_IssueDate": Col_IssueDate,
					"JobMtl_TranDate":  Col_TranDate,
					"JobMtl_PartNum":   Col_PartNum,
					"JobMtl_ExtCost":   Col_ExtCost,
				},
			},
		},
	},
}

// SchemaFor returns the registered schema for kind.
func SchemaFor(kind Kind) (KindSchema, error) {
	s, ok := registry[kind]
	if !ok {
		return KindSchema{}, fmt.Errorf("no schema registered for kind '%s'", kind)
	}
	return s, nil
}

func (ks KindSchema) isCanonical(col string) bool {
	for _, c := range ks.Canonical {
		if c == col {
			return true
		}
	}
	return false
}

// aliasIndex flattens every export schema's aliases; the value carries the
// canonical name and the export that declared it.
func (ks KindSchema) aliasIndex() map[string]aliasTarget {
	idx := make(map[string]aliasTarget)
	for _, es := range ks.Exports {
		for src, dst := range es.Aliases {
			if _, ok := idx[src]; !ok {
				idx[src] = aliasTarget{canonical: dst, export: es.Id()}
			}
		}
	}
	return idx
}

type aliasTarget struct {
	canonical string
	export    string
}

// ValidateRegistry checks that every alias points at a canonical column of its
// kind, that no source column is mapped to two different names and that
// required and date columns are canonical.
func ValidateRegistry() error {
	problems := make([]string, 0)
	for _, kind := range AllKinds() {
		ks, ok := registry[kind]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: not registered", kind))
			continue
		}
		for _, col := range append(append([]string{}, ks.Required...), ks.DateColumns...) {
			if !ks.isCanonical(col) {
				problems = append(problems, fmt.Sprintf("%s: '%s' is not a canonical column", kind, col))
			}
		}
		seen := make(map[string]string)
		for _, es := range ks.Exports {
			if es.Name == "" || es.Version <= 0 {
				problems = append(problems, fmt.Sprintf("%s: export schema needs a name and positive version", kind))
			}
			for src, dst := range es.Aliases {
				if !ks.isCanonical(dst) {
					problems = append(problems, fmt.Sprintf("%s/%s: alias '%s' targets unknown column '%s'", kind, es.Id(), src, dst))
				}
				if ks.isCanonical(src) {
					problems = append(problems, fmt.Sprintf("%s/%s: alias '%s' shadows a canonical column", kind, es.Id(), src))
				}
				if prev, ok := seen[src]; ok && prev != dst {
					problems = append(problems, fmt.Sprintf("%s: alias '%s' maps to both '%s' and '%s'", kind, src, prev, dst))
				}
				seen[src] = dst
			}
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid export schema registry: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MustValidateRegistry panics on an inconsistent registry. Commands call it at startup.
func MustValidateRegistry() {
	if err := ValidateRegistry(); err != nil {
		panic(err)
	}
}
