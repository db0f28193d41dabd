package reservationRepo

import (
	"github.com/ShadowAlejo/parqueadero/models"
	"github.com/ShadowAlejo/parqueadero/services/reconcile"
)

// Names maps the reconciler's vocabulary onto stored collection, field and
// state names.
type Names struct {
	Reservations   string
	Spaces         string
	State          string
	Start          string
	End            string
	EndTimeOfDay   string
	Resource       string
	LegacyResource string // Empty disables the legacy field
	Available      string
	StateValues    map[models.ReservationState]string
}

// DefaultNames returns the names used by the production database.
func DefaultNames() Names {
	return Names{
		Reservations:   "reservaciones",
		Spaces:         "espacios",
		State:          "estado",
		Start:          "fechaInicio",
		End:            "fechaFin",
		EndTimeOfDay:   "horaFin",
		Resource:       "espacio",
		LegacyResource: "espacioId",
		Available:      "disponible",
		StateValues: map[models.ReservationState]string{
			models.StatePending:   "pendiente",
			models.StateConfirmed: "confirmado",
			models.StateFinalized: "finalizado",
			models.StateCancelled: "cancelado",
		},
	}
}

func (n Names) stateValue(s models.ReservationState) string {
	if v, ok := n.StateValues[s]; ok {
		return v
	}
	return string(s)
}

func (n Names) stateValues(states []models.ReservationState) []interface{} {
	out := make([]interface{}, len(states))
	for i, s := range states {
		out[i] = n.stateValue(s)
	}
	return out
}

func (n Names) occupyingValues() []interface{} {
	return n.stateValues(models.OccupyingStates)
}

func (n Names) decodeState(raw string) models.ReservationState {
	for s, v := range n.StateValues {
		if v == raw {
			return s
		}
	}
	return models.ReservationState(raw)
}

func (n Names) timeField(f reconcile.TimeField) string {
	if f == reconcile.FieldEnd {
		return n.End
	}
	return n.Start
}

// refFields lists the reference fields a resource filter must match.
func (n Names) refFields() []string {
	if n.LegacyResource == "" || n.LegacyResource == n.Resource {
		return []string{n.Resource}
	}
	return []string{n.Resource, n.LegacyResource}
}

// pathEncodings lists the string shapes a space reference may be stored as.
func (n Names) pathEncodings(key string) []interface{} {
	return []interface{}{key, n.Spaces + "/" + key, "/" + n.Spaces + "/" + key}
}
