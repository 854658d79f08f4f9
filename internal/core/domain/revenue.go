package domain

import "github.com/suchimauz/clinic-workflow-engine/internal/core/json_types"

type RevenuePeriod struct {
	Start json_types.Date `json:"start"`
	End   json_types.Date `json:"end"`
}

// Отчет всегда пересчитывается от живого состояния, никогда не кэшируется
type RevenueReport struct {
	TotalAppointments  int           `json:"totalAppointments"`
	ExaminationRevenue int64         `json:"examinationRevenue"`
	MedicineRevenue    int64         `json:"medicineRevenue"`
	TotalRevenue       int64         `json:"totalRevenue"`
	TotalMedicinesSold int           `json:"totalMedicinesSold"`
	Period             RevenuePeriod `json:"period"`
}
