// internal/membership/status.go
package membership

import "time"

// ResolveStatus derives the canonical lifecycle status of m at now.
//
// An explicit stored status always wins. Without one the status comes from the
// end of the cotisation period: no period means AUCUN, a period ending before
// now means EXPIRE, anything else is ACTIF.
//
// ResolveStatus is pure; it may be called on every render.
func ResolveStatus(m *Member, now time.Time) LifecycleStatus {
	if m.Status != nil {
		switch *m.Status {
		case StoredSympathisant:
			return StatusSympathisant
		case StoredEnAttenteValidation:
			return StatusEnAttenteValidation
		case StoredEnAttenteSignature:
			return StatusEnAttenteSignature
		case StoredEnAttentePaiement:
			return StatusEnAttentePaiement
		case StoredActif:
			return StatusActif
		}
	}
	return statusFromPeriod(m.Cotisation.DateFin, now)
}

func statusFromPeriod(dateFin *time.Time, now time.Time) LifecycleStatus {
	if dateFin == nil {
		return StatusAucun
	}
	if dateFin.Before(now) {
		return StatusExpire
	}
	return StatusActif
}

// StatusFromOverride maps an exported status string back to a lifecycle
// status. Override values are taken as is; computed values are re-derived from
// dateFin.
func StatusFromOverride(statut string, dateFin *time.Time, now time.Time) LifecycleStatus {
	if s := StoredStatus(statut); s.Valid() {
		return ResolveStatus(&Member{Status: &s}, now)
	}
	return statusFromPeriod(dateFin, now)
}
