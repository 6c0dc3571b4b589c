package console

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

const dateLayout = "2006-01-02"

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

// RenderDashboard печатает дашборд проекта.
func RenderDashboard(out io.Writer, d domain.ProjectDashboard) {
	p := d.Project
	delivery := "-"
	if !p.DeliveryDate.IsZero() {
		delivery = p.DeliveryDate.Format(dateLayout)
	}

	fmt.Fprintf(out, "\n=== Проект #%d: %s ===\n", p.ID, p.ShipName)
	fmt.Fprintf(out, "Тип судна: %s | Статус: %s\n", p.ShipType, p.Status)
	fmt.Fprintf(out, "Контракт: %s | Сдача: %s\n", p.ContractDate.Format(dateLayout), delivery)
	fmt.Fprintf(out, "Сумма заказов: %d\n", d.TotalCost)
	fmt.Fprintf(out, "Выбросы CO2e, кг: транспорт %.3f, хранение %.3f, всего %.3f\n",
		d.Carbon.Transport, d.Carbon.Storage, d.Carbon.Total)

	if intensity, ok := d.CarbonIntensity(); ok {
		fmt.Fprintf(out, "Углеродная интенсивность: %.3f кг на 1 000 000\n", intensity)
	} else {
		fmt.Fprintln(out, "Углеродная интенсивность: нет заказов")
	}

	fmt.Fprintln(out, "Топ поставщиков:")
	if len(d.TopSuppliers) == 0 {
		fmt.Fprintln(out, "  (нет заказов)")
		return
	}
	tw := newTable(out)
	for i, s := range d.TopSuppliers {
		fmt.Fprintf(tw, "  %d.\t%s\t%d\n", i+1, s.Name, s.Amount)
	}
	_ = tw.Flush()
}

// RenderSupplierReport печатает ESG-отчёт таблицей.
func RenderSupplierReport(out io.Writer, rows []domain.SupplierReportRow) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "[инфо] Поставщиков под фильтр нет.")
		return
	}

	tw := newTable(out)
	fmt.Fprintln(tw, "ID\tПоставщик\tСтрана\tESG\tСумма заказов\tЗадержки, %")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%.1f\n",
			r.SupplierID, r.Name, r.Country, r.ESG, r.TotalOrderAmount, r.DelayRate())
	}
	_ = tw.Flush()
}

// RenderSupplierDetail печатает последние заказы поставщика.
func RenderSupplierDetail(out io.Writer, supplierID int64, orders []domain.SupplierOrderDetail) {
	fmt.Fprintf(out, "\n--- Последние заказы поставщика #%d ---\n", supplierID)
	if len(orders) == 0 {
		fmt.Fprintln(out, "(заказов нет)")
		return
	}

	tw := newTable(out)
	fmt.Fprintln(tw, "Заказ\tДата\tСтатус\tЗадержка")
	for _, o := range orders {
		delayed := "нет"
		if o.Delayed {
			delayed = "да"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", o.OrderID, o.OrderDate.Format(dateLayout), o.Status, delayed)
	}
	_ = tw.Flush()
}
