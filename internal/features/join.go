package features

import (
	"github.com/wonny/clv-retention/internal/contracts"
)

// Join pairs every feature row with its label 1:1.
// A missing label or a repeated key is an integrity failure.
func (s *Snapshot) Join() ([]contracts.RollingDatasetRow, error) {
	labels := make(map[contracts.RowKey]contracts.CustomerLabelRow, len(s.Labels))
	for _, l := range s.Labels {
		if _, dup := labels[l.Key()]; dup {
			return nil, contracts.NewIntegrityError("label_unique", "duplicate label for customer %d at %s", l.CustomerID, contracts.FormatDate(l.CutoffDate))
		}
		labels[l.Key()] = l
	}

	seen := make(map[contracts.RowKey]struct{}, len(s.Features))
	rows := make([]contracts.RollingDatasetRow, 0, len(s.Features))
	for _, f := range s.Features {
		key := f.Key()
		if _, dup := seen[key]; dup {
			return nil, contracts.NewIntegrityError("feature_unique", "duplicate features for customer %d at %s", f.CustomerID, contracts.FormatDate(f.CutoffDate))
		}
		seen[key] = struct{}{}

		l, ok := labels[key]
		if !ok {
			return nil, contracts.NewIntegrityError("label_present", "no label for customer %d at %s", f.CustomerID, contracts.FormatDate(f.CutoffDate))
		}
		rows = append(rows, contracts.RollingDatasetRow{
			CustomerFeatureRow: f,
			ChurnLabel:         l.ChurnLabel,
			RevenuePredWindow:  l.RevenuePredWindow,
		})
	}
	return rows, nil
}
