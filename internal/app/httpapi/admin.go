package httpapi

import (
	"net/http"
	"os"
	"runtime"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/domain/coupon"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
)

func (h *handler) adminListProducts(w http.ResponseWriter, r *http.Request) {
	filter := productFilter(r)
	filter.IncludeDraft = true
	products, err := h.app.Catalog.ListProducts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := decodeJSON(w, r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	p.ID = ""
	created, err := h.app.Catalog.CreateProduct(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := decodeJSON(w, r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	p.ID = mux.Vars(r)["id"]
	updated, err := h.app.Catalog.UpdateProduct(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Catalog.DeleteProduct(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var c catalog.Category
	if err := decodeJSON(w, r, &c); err != nil {
		h.fail(w, r, err)
		return
	}
	c.ID = ""
	created, err := h.app.Catalog.CreateCategory(r.Context(), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Orders.ListAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status order.Status `json:"status"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.app.Orders.UpdateStatus(r.Context(), mux.Vars(r)["id"], payload.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Coupons.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var c coupon.Coupon
	if err := decodeJSON(w, r, &c); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.app.Coupons.Create(r.Context(), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Users.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) setUserActive(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	if payload.Active == nil {
		h.fail(w, r, service.RequiredError("active"))
		return
	}
	id := mux.Vars(r)["id"]
	if id == userID(r) && !*payload.Active {
		h.fail(w, r, service.NewValidationError("active", "admins cannot deactivate themselves"))
		return
	}
	updated, err := h.app.Users.SetActive(r.Context(), id, *payload.Active)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) abandonmentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Abandonment.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// abandonmentScan runs a reminder pass now. Per-record failures are not
// errors; a failed stage query is reported next to the partial count.
func (h *handler) abandonmentScan(w http.ResponseWriter, r *http.Request) {
	advanced, err := h.app.Abandonment.ProcessAbandonedCarts(r.Context())
	resp := map[string]interface{}{"processed": advanced}
	if err != nil {
		h.log.WithError(err).Warn("manual abandonment scan incomplete")
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) abandonmentCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.app.Abandonment.CleanupOldRecords(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (h *handler) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Scheduler.Status())
}

func (h *handler) schedulerStart(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.app.Scheduler.StartTask(name); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Scheduler.Status()[name])
}

func (h *handler) schedulerStop(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.app.Scheduler.StopTask(name); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Scheduler.Status()[name])
}

func (h *handler) schedulerStopAll(w http.ResponseWriter, r *http.Request) {
	h.app.Scheduler.StopAll()
	writeJSON(w, http.StatusOK, h.app.Scheduler.Status())
}

// schedulerRun executes a task synchronously. A task error is part of the
// reported status rather than a request failure.
func (h *handler) schedulerRun(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	err := h.app.Scheduler.RunNow(r.Context(), name)
	if service.IsNotFound(err) || service.IsConflict(err) {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Scheduler.Status()[name])
}

func (h *handler) mailVerify(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Abandonment.VerifySender(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

type systemReport struct {
	Hostname      string  `json:"hostname"`
	UptimeSeconds uint64  `json:"uptimeSeconds"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryTotal   uint64  `json:"memoryTotal"`
	MemoryUsed    uint64  `json:"memoryUsed"`
	ProcessRSS    uint64  `json:"processRss"`
	Goroutines    int     `json:"goroutines"`
	GoVersion     string  `json:"goVersion"`
}

// systemInfo reports host and process resource usage. Probes that fail on
// the current platform leave their fields zero.
func (h *handler) systemInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info := systemReport{
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}
	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hi.Hostname
		info.UptimeSeconds = hi.Uptime
	} else {
		h.log.WithError(err).Debug("host info unavailable")
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		info.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryUsed = vm.Used
	}
	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mi, err := proc.MemoryInfoWithContext(ctx); err == nil {
			info.ProcessRSS = mi.RSS
		}
	}
	writeJSON(w, http.StatusOK, info)
}
