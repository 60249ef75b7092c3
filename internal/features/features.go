// Package features defines the typed transaction feature record consumed by
// the model, and the training-time baseline statistics it is compared against.
package features

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// FeatureVector is the validated, immutable input record. The field set and
// order exactly match the model's trained feature list; construction rejects
// missing fields and out-of-range values.
type FeatureVector struct {
	Age                      int     `json:"age" validate:"gte=13,lte=100"`
	Income                   float64 `json:"income" validate:"gte=0"`
	AccountAgeDays           int     `json:"account_age_days" validate:"gte=0,lte=36500"`
	NumTxn30d                int     `json:"num_txn_30d" validate:"gte=0,lte=5000"`
	AvgTxnAmount30d          float64 `json:"avg_txn_amount_30d" validate:"gte=0,lte=100000"`
	NumChargebacks180d       int     `json:"num_chargebacks_180d" validate:"gte=0,lte=200"`
	DeviceChangeCount30d     int     `json:"device_change_count_30d" validate:"gte=0,lte=200"`
	GeoDistanceFromLastTxnKm float64 `json:"geo_distance_from_last_txn_km" validate:"gte=0,lte=20000"`
	IsInternational          bool    `json:"is_international"`
	MerchantRiskScore        float64 `json:"merchant_risk_score" validate:"gte=0,lte=1"`
}

// Payload is the wire form of a feature vector. Pointer fields distinguish
// an absent field from a zero value so that construction can reject both.
type Payload struct {
	Age                      *int     `json:"age"`
	Income                   *float64 `json:"income"`
	AccountAgeDays           *int     `json:"account_age_days"`
	NumTxn30d                *int     `json:"num_txn_30d"`
	AvgTxnAmount30d          *float64 `json:"avg_txn_amount_30d"`
	NumChargebacks180d       *int     `json:"num_chargebacks_180d"`
	DeviceChangeCount30d     *int     `json:"device_change_count_30d"`
	GeoDistanceFromLastTxnKm *float64 `json:"geo_distance_from_last_txn_km"`
	IsInternational          *bool    `json:"is_international"`
	MerchantRiskScore        *float64 `json:"merchant_risk_score"`
}

// Names returns the declared feature names in model training order.
func Names() []string {
	return []string{
		"age",
		"income",
		"account_age_days",
		"num_txn_30d",
		"avg_txn_amount_30d",
		"num_chargebacks_180d",
		"device_change_count_30d",
		"geo_distance_from_last_txn_km",
		"is_international",
		"merchant_risk_score",
	}
}

var validate = validator.New()

// FromPayload builds a validated FeatureVector, rejecting missing fields.
func FromPayload(p Payload) (FeatureVector, error) {
	missing := func(name string) (FeatureVector, error) {
		return FeatureVector{}, fmt.Errorf("missing required field: %s", name)
	}
	switch {
	case p.Age == nil:
		return missing("age")
	case p.Income == nil:
		return missing("income")
	case p.AccountAgeDays == nil:
		return missing("account_age_days")
	case p.NumTxn30d == nil:
		return missing("num_txn_30d")
	case p.AvgTxnAmount30d == nil:
		return missing("avg_txn_amount_30d")
	case p.NumChargebacks180d == nil:
		return missing("num_chargebacks_180d")
	case p.DeviceChangeCount30d == nil:
		return missing("device_change_count_30d")
	case p.GeoDistanceFromLastTxnKm == nil:
		return missing("geo_distance_from_last_txn_km")
	case p.IsInternational == nil:
		return missing("is_international")
	case p.MerchantRiskScore == nil:
		return missing("merchant_risk_score")
	}

	fv := FeatureVector{
		Age:                      *p.Age,
		Income:                   *p.Income,
		AccountAgeDays:           *p.AccountAgeDays,
		NumTxn30d:                *p.NumTxn30d,
		AvgTxnAmount30d:          *p.AvgTxnAmount30d,
		NumChargebacks180d:       *p.NumChargebacks180d,
		DeviceChangeCount30d:     *p.DeviceChangeCount30d,
		GeoDistanceFromLastTxnKm: *p.GeoDistanceFromLastTxnKm,
		IsInternational:          *p.IsInternational,
		MerchantRiskScore:        *p.MerchantRiskScore,
	}
	if err := validate.Struct(fv); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			v := verrs[0]
			return FeatureVector{}, fmt.Errorf("field %s out of range (%s=%s)", v.Field(), v.Tag(), v.Param())
		}
		return FeatureVector{}, err
	}
	return fv, nil
}

// Values returns the numeric feature values in training order. Booleans are
// coerced to 0/1 so streaming statistics apply uniformly.
func (f FeatureVector) Values() []float64 {
	intl := 0.0
	if f.IsInternational {
		intl = 1.0
	}
	return []float64{
		float64(f.Age),
		f.Income,
		float64(f.AccountAgeDays),
		float64(f.NumTxn30d),
		f.AvgTxnAmount30d,
		float64(f.NumChargebacks180d),
		float64(f.DeviceChangeCount30d),
		f.GeoDistanceFromLastTxnKm,
		intl,
		f.MerchantRiskScore,
	}
}

// ValueMap returns the feature values keyed by name.
func (f FeatureVector) ValueMap() map[string]float64 {
	names := Names()
	values := f.Values()
	out := make(map[string]float64, len(names))
	for i, name := range names {
		out[name] = values[i]
	}
	return out
}
