package domain

import "time"

// Chamber representa uma câmara fria com capacidade finita de vagas.
// A ocupação só é alterada pelas operações de reserva/liberação/transferência do registro de câmaras.
type Chamber struct {
	Code             string    `json:"code" validate:"required,max=32"`
	Name             string    `json:"name" validate:"max=100"`
	Capacity         int       `json:"capacity" validate:"gt=0"`
	CurrentOccupancy int       `json:"current_occupancy"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Available retorna o número de vagas livres.
func (c Chamber) Available() int {
	return c.Capacity - c.CurrentOccupancy
}

// IsFull informa se a câmara atingiu a capacidade.
func (c Chamber) IsFull() bool {
	return c.CurrentOccupancy >= c.Capacity
}

// ChamberOccupancy é a visão somente-leitura entregue aos colaboradores externos.
type ChamberOccupancy struct {
	Code             string `json:"code"`
	Name             string `json:"name,omitempty"`
	Capacity         int    `json:"capacity"`
	CurrentOccupancy int    `json:"current_occupancy"`
	Available        int    `json:"available"`
	Active           bool   `json:"active"`
}

// Occupancy converte a câmara para sua visão de ocupação.
func (c Chamber) Occupancy() ChamberOccupancy {
	return ChamberOccupancy{
		Code:             c.Code,
		Name:             c.Name,
		Capacity:         c.Capacity,
		CurrentOccupancy: c.CurrentOccupancy,
		Available:        c.Available(),
		Active:           c.Active,
	}
}

// CapacityUpdateRequest é o payload para alteração de capacidade.
type CapacityUpdateRequest struct {
	Capacity int `json:"capacity" validate:"gt=0"`
}
