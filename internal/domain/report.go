package domain

import "time"

// Project: судостроительный проект, к которому привязаны заказы.
type Project struct {
	ID           int64
	ShipName     string
	ShipType     string
	ContractDate time.Time
	DeliveryDate time.Time
	Status       string
}

// Выбросы CO2e в кг по типам.
type CarbonBreakdown struct {
	Transport float64
	Storage   float64
	Total     float64
}

type SupplierSpend struct {
	Name   string
	Amount int64
}

// ProjectDashboard собирает всё, что показывает пункт меню 1.
type ProjectDashboard struct {
	Project      Project
	TotalCost    int64
	Carbon       CarbonBreakdown
	TopSuppliers []SupplierSpend
}

// CarbonIntensity — кг CO2e на миллион денежных единиц; ok=false, если заказов нет.
func (d ProjectDashboard) CarbonIntensity() (float64, bool) {
	if d.TotalCost <= 0 {
		return 0, false
	}
	return d.Carbon.Total / (float64(d.TotalCost) / 1_000_000.0), true
}

// SupplierReportFilter — фильтры ESG-отчёта. Границы задержек в процентах.
type SupplierReportFilter struct {
	ESGGrades []string
	MinDelay  float64
	MaxDelay  float64
}

type SupplierReportRow struct {
	SupplierID       int64
	Name             string
	Country          string
	ESG              string
	TotalOrderAmount int64
	Deliveries       int64
	DelayedCount     int64
}

// DelayRate возвращает долю задержанных поставок в процентах.
func (r SupplierReportRow) DelayRate() float64 {
	if r.Deliveries == 0 {
		return 0
	}
	return float64(r.DelayedCount) / float64(r.Deliveries) * 100
}

// SupplierOrderDetail описывает один из последних заказов поставщика.
type SupplierOrderDetail struct {
	OrderID   int64
	OrderDate time.Time
	Status    string
	Delayed   bool
}
