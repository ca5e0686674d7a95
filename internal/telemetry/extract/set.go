package extract

import (
	"time"

	"github.com/banshee-data/telemetry.report/internal/telemetry/packet"
)

// Snapshots holds one freshly built snapshot per domain.
type Snapshots struct {
	Metadata   MetadataSnapshot
	Suspension SuspensionSnapshot
	Tires      TiresSnapshot
	Aero       AeroSnapshot
	Drivetrain DrivetrainSnapshot
	Balance    BalanceSnapshot
}

// Set bundles the six extractors of one session.
type Set struct {
	Session    SessionContext
	Metadata   *MetadataExtractor
	Suspension *SuspensionExtractor
	Tires      *TireExtractor
	Aero       *AeroExtractor
	Drivetrain *DrivetrainExtractor
	Balance    *BalanceExtractor
}

// NewSet builds a fresh extractor set for session. The lookup tables may be
// nil.
func NewSet(session SessionContext, cars CarTable, downforce DownforceTable, opts Options) *Set {
	opts = opts.withDefaults()
	return &Set{
		Session:    session,
		Metadata:   NewMetadataExtractor(session, cars),
		Suspension: NewSuspensionExtractor(opts),
		Tires:      NewTireExtractor(opts),
		Aero:       NewAeroExtractor(opts, downforce),
		Drivetrain: NewDrivetrainExtractor(opts),
		Balance:    NewBalanceExtractor(opts),
	}
}

// Extract runs every extractor over f, received at ts.
func (s *Set) Extract(f *packet.Frame, ts time.Time) Snapshots {
	return Snapshots{
		Metadata:   s.Metadata.Extract(f, ts),
		Suspension: s.Suspension.Extract(f),
		Tires:      s.Tires.Extract(f),
		Aero:       s.Aero.Extract(f),
		Drivetrain: s.Drivetrain.Extract(f),
		Balance:    s.Balance.Extract(f),
	}
}
