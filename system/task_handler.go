package system

import (
	"net/http"

	"task-collab/common"
	"task-collab/entity"
	"task-collab/service"
	"task-collab/storage"
)

func listQuery(r *http.Request) (service.ListQuery, error) {
	query := r.URL.Query()
	var q service.ListQuery
	if s := query.Get("status"); s != "" {
		st, err := entity.ParseStatus(s)
		if err != nil {
			return q, common.NewValidationError("status", err.Error())
		}
		q.Status = st
	}
	if p := query.Get("priority"); p != "" {
		pr, err := entity.ParsePriority(p)
		if err != nil {
			return q, common.NewValidationError("priority", err.Error())
		}
		q.Priority = pr
	}
	q.Sort = storage.SortCreatedAt
	if query.Get("sort") == string(storage.SortDueDate) {
		q.Sort = storage.SortDueDate
	}
	q.Asc = query.Get("order") == "asc"
	return q, nil
}

func (h *Handler) GetAllTasks(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tasks, err := h.Tasks.ListTasks(r.Context(), currentUser(r), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (h *Handler) GetOverdueTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Tasks.Overdue(r.Context(), currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Tasks.Dashboard(r.Context(), currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Tasks.GetTask(r.Context(), pathID(r), currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"task": task})
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var in service.TaskInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	task, err := h.Tasks.CreateTask(r.Context(), in, currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Task created successfully",
		"task":    task,
	})
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var patch service.TaskPatch
	if err := decode(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	task, err := h.Tasks.UpdateTask(r.Context(), pathID(r), patch, currentUser(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Task updated successfully",
		"task":    task,
	})
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Tasks.DeleteTask(r.Context(), pathID(r), currentUser(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
}
