// tools.go defines the orchestrator-scoped tool catalog: job dispatch and
// inspection, automation CRUD, and persona updates. Tool failures are
// returned as values inside the result envelope, never raised.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/automation"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/jobs"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/provider"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/schedule"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/worker"
)

// toolSpecs lists the orchestrator's own tools. Worker tools are never
// exposed at this level; long-running work goes through dispatch_task.
func (o *Orchestrator) toolSpecs() []provider.ToolSpec {
	workerTypes := strings.Join(worker.TypeNames(), ", ")
	return []provider.ToolSpec{
		{
			Name:        "dispatch_task",
			Description: "Dispatch a long-running task to a background worker. Returns immediately with a job id; the result arrives asynchronously. Worker types: " + workerTypes + ".",
			InputSchema: objectSchema(map[string]any{
				"worker_type": map[string]any{"type": "string", "enum": worker.TypeNames()},
				"task":        map[string]any{"type": "string", "description": "Complete, self-contained task description"},
				"depends_on":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}, "worker_type", "task"),
		},
		{
			Name:        "list_jobs",
			Description: "List this chat's worker jobs with their status and progress.",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "cancel_job",
			Description: "Cancel a queued or running job by id.",
			InputSchema: objectSchema(map[string]any{
				"job_id": map[string]any{"type": "string"},
			}, "job_id"),
		},
		{
			Name:        "create_automation",
			Description: "Create a recurring scheduled prompt for this chat. Schedule kinds: cron (5-field expression), interval (minutes), random (min_minutes..max_minutes).",
			InputSchema: objectSchema(map[string]any{
				"name":        map[string]any{"type": "string"},
				"description": map[string]any{"type": "string", "description": "What to do each time it fires"},
				"schedule": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"kind":        map[string]any{"type": "string", "enum": []string{"cron", "interval", "random"}},
						"cron":        map[string]any{"type": "string"},
						"minutes":     map[string]any{"type": "integer"},
						"min_minutes": map[string]any{"type": "integer"},
						"max_minutes": map[string]any{"type": "integer"},
					},
				},
				"respect_quiet_hours": map[string]any{"type": "boolean"},
			}, "name", "description", "schedule"),
		},
		{
			Name:        "list_automations",
			Description: "List this chat's automations.",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "update_automation",
			Description: "Update an automation's name, description, schedule, or enabled state.",
			InputSchema: objectSchema(map[string]any{
				"id":          map[string]any{"type": "string"},
				"name":        map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
				"schedule":    map[string]any{"type": "object"},
				"enabled":     map[string]any{"type": "boolean"},
			}, "id"),
		},
		{
			Name:        "delete_automation",
			Description: "Delete an automation by id.",
			InputSchema: objectSchema(map[string]any{
				"id": map[string]any{"type": "string"},
			}, "id"),
		},
		{
			Name:        "update_user_persona",
			Description: "Record a lasting fact or preference about the user.",
			InputSchema: objectSchema(map[string]any{
				"notes": map[string]any{"type": "string"},
			}, "notes"),
		},
	}
}

// executeTool dispatches one orchestrator tool call. Errors become
// {error: message} values for the model.
func (o *Orchestrator) executeTool(ctx context.Context, cc ChatContext, call provider.ToolCall) any {
	out, err := o.runTool(ctx, cc, call.Name, call.Input)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return out
}

func (o *Orchestrator) runTool(ctx context.Context, cc ChatContext, name string, input map[string]any) (any, error) {
	switch name {
	case "dispatch_task":
		return o.dispatchTask(cc, input)
	case "list_jobs":
		return o.listJobs(cc.Chat), nil
	case "cancel_job":
		return o.cancelJob(input)
	case "create_automation":
		return o.createAutomation(cc.Chat, input)
	case "list_automations":
		return o.listAutomations(cc.Chat), nil
	case "update_automation":
		return o.updateAutomation(input)
	case "delete_automation":
		id, _ := input["id"].(string)
		if err := o.autos.Delete(id); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": id}, nil
	case "update_user_persona":
		notes, _ := input["notes"].(string)
		if o.persona == nil {
			return nil, fmt.Errorf("persona manager is not configured")
		}
		if err := o.persona.UpdatePersona(ctx, notes); err != nil {
			return nil, err
		}
		return "OK", nil
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}

// dispatchTask registers a job and starts its worker without blocking on
// completion. Beyond the concurrency cap the job stays queued and is
// started by the event subscriber when a slot frees.
func (o *Orchestrator) dispatchTask(cc ChatContext, input map[string]any) (any, error) {
	workerType, _ := input["worker_type"].(string)
	task, _ := input["task"].(string)
	typ, ok := worker.Lookup(workerType)
	if !ok {
		return nil, fmt.Errorf("unknown worker type %q (available: %s)", workerType, strings.Join(worker.TypeNames(), ", "))
	}
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("task description is required")
	}
	var deps []string
	if raw, ok := input["depends_on"].([]any); ok {
		for _, d := range raw {
			if s, ok := d.(string); ok {
				deps = append(deps, s)
			}
		}
	}

	skillPrompt := ""
	if o.skillPrompt != nil {
		if skill := o.convo.ActiveSkill(cc.Chat); skill != "" {
			skillPrompt = o.skillPrompt(skill)
		}
	}

	job := o.jobs.Create(cc.Chat, workerType, task, deps)
	d := &dispatchInfo{cc: cc, typ: typ, task: task, skillPrompt: skillPrompt}
	o.mu.Lock()
	o.dispatches[job.ID] = d
	o.mu.Unlock()

	status := string(jobs.StatusQueued)
	if started, ok := o.jobs.Start(job.ID); ok {
		o.spawnWorker(started, d)
		status = string(jobs.StatusRunning)
	}

	return map[string]any{
		"job_id":      job.ID,
		"worker_type": workerType,
		"status":      status,
	}, nil
}

func (o *Orchestrator) listJobs(chat string) any {
	list := o.jobs.List(chat)
	out := make([]map[string]any, 0, len(list))
	for _, j := range list {
		entry := map[string]any{
			"id":          j.ID,
			"worker_type": j.WorkerType,
			"status":      string(j.Status),
			"task":        j.Task,
		}
		if len(j.Progress) > 0 {
			entry["last_activity"] = j.Progress[len(j.Progress)-1]
		}
		if j.Status.Terminal() {
			entry["duration_s"] = j.DurationS
		}
		if j.Error != "" {
			entry["error"] = j.Error
		}
		out = append(out, entry)
	}
	return map[string]any{"jobs": out}
}

func (o *Orchestrator) cancelJob(input map[string]any) (any, error) {
	id, _ := input["job_id"].(string)
	job := o.jobs.Cancel(id)
	if job == nil {
		return nil, fmt.Errorf("job %s not found or already finished", id)
	}
	return map[string]any{"job_id": job.ID, "status": string(job.Status)}, nil
}

func (o *Orchestrator) createAutomation(chat string, input map[string]any) (any, error) {
	name, _ := input["name"].(string)
	description, _ := input["description"].(string)
	spec, err := decodeSchedule(input["schedule"])
	if err != nil {
		return nil, err
	}
	respectQuiet := true
	if v, ok := input["respect_quiet_hours"].(bool); ok {
		respectQuiet = v
	}

	a, err := o.autos.Create(chat, name, description, spec, true, respectQuiet)
	if err != nil {
		return nil, err
	}
	return automationEntry(a), nil
}

func (o *Orchestrator) listAutomations(chat string) any {
	list := o.autos.List(chat)
	out := make([]map[string]any, 0, len(list))
	for _, a := range list {
		out = append(out, automationEntry(a))
	}
	return map[string]any{"automations": out}
}

func (o *Orchestrator) updateAutomation(input map[string]any) (any, error) {
	id, _ := input["id"].(string)
	var upd automation.Update
	if v, ok := input["name"].(string); ok {
		upd.Name = &v
	}
	if v, ok := input["description"].(string); ok {
		upd.Description = &v
	}
	if v, ok := input["enabled"].(bool); ok {
		upd.Enabled = &v
	}
	if raw, ok := input["schedule"]; ok && raw != nil {
		spec, err := decodeSchedule(raw)
		if err != nil {
			return nil, err
		}
		upd.Schedule = &spec
	}

	a, err := o.autos.Update(id, upd)
	if err != nil {
		return nil, err
	}
	return automationEntry(a), nil
}

func automationEntry(a automation.Automation) map[string]any {
	entry := map[string]any{
		"id":       a.ID,
		"name":     a.Name,
		"schedule": a.Schedule.Describe(),
		"enabled":  a.Enabled,
		"runs":     a.RunCount,
	}
	if a.NextRun != nil {
		entry["next_run"] = a.NextRun.Format("2006-01-02 15:04")
	}
	if a.LastError != "" {
		entry["last_error"] = a.LastError
	}
	return entry
}

// decodeSchedule converts the model's schedule object into a Spec via a
// JSON round-trip, so field coercion matches the persisted format.
func decodeSchedule(raw any) (schedule.Spec, error) {
	if raw == nil {
		return schedule.Spec{}, fmt.Errorf("schedule is required")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return schedule.Spec{}, fmt.Errorf("invalid schedule: %w", err)
	}
	var spec schedule.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return schedule.Spec{}, fmt.Errorf("invalid schedule: %w", err)
	}
	return spec, nil
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
