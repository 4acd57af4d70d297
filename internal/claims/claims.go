// Package claims models the proof payloads attached to impact claims. Each
// known claim type gets a typed variant; anything else parses into
// Unrecognized, which earns nothing and is auto-rejected by compliance.
package claims

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a claim type
type Kind string

const (
	// KindTreePlanting - trees planted, photo evidence
	KindTreePlanting Kind = "tree_planting"
	// KindPlasticRecycling - plastic recycled by weight, photo evidence
	KindPlasticRecycling Kind = "plastic_recycling"
	// KindAQIData - air quality report from a registered device
	KindAQIData Kind = "aqi_data"
	// KindCarbonCapture - carbon captured by an industrial sentinel
	KindCarbonCapture Kind = "carbon_capture"
	// KindWastewaterTreatment - wastewater treated by an industrial sentinel
	KindWastewaterTreatment Kind = "wastewater_treatment"
	// KindUnrecognized - unknown claim type, zero reward, auto-reject
	KindUnrecognized Kind = "unrecognized"
)

// Proof is one typed claim payload
type Proof interface {
	// Kind returns the claim type
	Kind() Kind
	// EvidenceToken returns the replay-guarded token (photo URL or hardware
	// signature), or "" for proofs that carry none
	EvidenceToken() string
	// Origin returns the declared device identifier and whether the claim
	// type requires one
	Origin() (id string, required bool)
	// Quantity returns the numeric claim field governed by the physical
	// anomaly ceiling, or 0 for types without one
	Quantity() float64
}

// TreePlanting claims planted trees with photo evidence
type TreePlanting struct {
	Count    uint64 `json:"count"`
	Location string `json:"location"`
	Evidence string `json:"evidence"`
}

func (TreePlanting) Kind() Kind { return KindTreePlanting }
func (p TreePlanting) EvidenceToken() string { return p.Evidence }
func (TreePlanting) Origin() (string, bool) { return "", false }
func (p TreePlanting) Quantity() float64 { return float64(p.Count) }

// PlasticRecycling claims recycled plastic by weight with photo evidence
type PlasticRecycling struct {
	WeightKg float64 `json:"weight_kg"`
	Location string  `json:"location"`
	Evidence string  `json:"evidence"`
}

func (PlasticRecycling) Kind() Kind { return KindPlasticRecycling }
func (p PlasticRecycling) EvidenceToken() string { return p.Evidence }
func (PlasticRecycling) Origin() (string, bool) { return "", false }
func (p PlasticRecycling) Quantity() float64 { return p.WeightKg }

// AQIData reports an air quality reading from a registered device
type AQIData struct {
	DeviceID          string  `json:"device_id"`
	Location          string  `json:"location"`
	PM25              float64 `json:"pm25"`
	HardwareSignature string  `json:"hardware_signature"`
}

func (AQIData) Kind() Kind { return KindAQIData }
func (p AQIData) EvidenceToken() string { return p.HardwareSignature }
func (p AQIData) Origin() (string, bool) { return p.DeviceID, true }
func (p AQIData) Quantity() float64 { return p.PM25 }

// CarbonCapture claims captured CO2 tonnage from an industrial sentinel
type CarbonCapture struct {
	SentinelID        string  `json:"sentinel_id"`
	TonsCaptured      float64 `json:"tons_captured"`
	HardwareSignature string  `json:"hardware_signature"`
}

func (CarbonCapture) Kind() Kind { return KindCarbonCapture }
func (p CarbonCapture) EvidenceToken() string { return p.HardwareSignature }
func (p CarbonCapture) Origin() (string, bool) { return p.SentinelID, true }
func (p CarbonCapture) Quantity() float64 { return p.TonsCaptured }

// WastewaterTreatment claims treated wastewater volume from an industrial sentinel
type WastewaterTreatment struct {
	SentinelID        string  `json:"sentinel_id"`
	LitersTreated     uint64  `json:"liters_treated"`
	HardwareSignature string  `json:"hardware_signature"`
}

func (WastewaterTreatment) Kind() Kind { return KindWastewaterTreatment }
func (p WastewaterTreatment) EvidenceToken() string { return p.HardwareSignature }
func (p WastewaterTreatment) Origin() (string, bool) { return p.SentinelID, true }
func (p WastewaterTreatment) Quantity() float64 { return float64(p.LitersTreated) }

// Unrecognized is the fallback variant for unknown or malformed payloads
type Unrecognized struct {
	RawType string
}

func (Unrecognized) Kind() Kind { return KindUnrecognized }
func (Unrecognized) EvidenceToken() string { return "" }
func (Unrecognized) Origin() (string, bool) { return "", false }
func (Unrecognized) Quantity() float64 { return 0 }

// Parse decodes a raw proof payload into its typed variant. Unknown types and
// undecodable payloads come back as Unrecognized, never as an error: the
// compliance pass owns the rejection.
func Parse(raw json.RawMessage) Proof {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Unrecognized{RawType: "undecodable"}
	}

	switch Kind(head.Type) {
	case KindTreePlanting:
		var p TreePlanting
		if err := json.Unmarshal(raw, &p); err != nil {
			return Unrecognized{RawType: head.Type}
		}
		return p
	case KindPlasticRecycling:
		var p PlasticRecycling
		if err := json.Unmarshal(raw, &p); err != nil {
			return Unrecognized{RawType: head.Type}
		}
		return p
	case KindAQIData:
		var p AQIData
		if err := json.Unmarshal(raw, &p); err != nil {
			return Unrecognized{RawType: head.Type}
		}
		return p
	case KindCarbonCapture:
		var p CarbonCapture
		if err := json.Unmarshal(raw, &p); err != nil {
			return Unrecognized{RawType: head.Type}
		}
		return p
	case KindWastewaterTreatment:
		var p WastewaterTreatment
		if err := json.Unmarshal(raw, &p); err != nil {
			return Unrecognized{RawType: head.Type}
		}
		return p
	default:
		return Unrecognized{RawType: head.Type}
	}
}

// Marshal encodes a typed proof back into its wire payload, re-attaching the
// type tag
func Marshal(p Proof) (json.RawMessage, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal proof: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("reshape proof: %w", err)
	}
	fields["type"] = string(p.Kind())

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal tagged proof: %w", err)
	}
	return out, nil
}
