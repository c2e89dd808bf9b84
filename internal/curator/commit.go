package curator

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/embed"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/policy"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/store"
)

// CommitStore is the part of the store the commit pipeline writes to.
type CommitStore interface {
	store.EntityStore
	store.AuditStore
	store.VectorStore
}

// Committer applies curator actions to the entity tables one at a time.
type Committer struct {
	store      CommitStore
	embedder   embed.Embedder
	researcher *Researcher
	model      string
	changedBy  string
	now        func() time.Time
}

// NewCommitter creates a Committer. embedder and researcher may be nil: new
// entities are then not indexed and research_fill actions fail.
func NewCommitter(st CommitStore, embedder embed.Embedder, researcher *Researcher, modelName, changedBy string) *Committer {
	if changedBy == "" {
		changedBy = "curator"
	}
	return &Committer{
		store:      st,
		embedder:   embedder,
		researcher: researcher,
		model:      modelName,
		changedBy:  changedBy,
		now:        time.Now,
	}
}

// Batch is one commit call. All audit and provenance rows share its ID.
type Batch struct {
	ID        string
	SessionID string
	ChangedBy string
}

// NewBatch starts a batch with a fresh id.
func NewBatch(sessionID, changedBy string) Batch {
	return Batch{ID: uuid.New().String(), SessionID: sessionID, ChangedBy: changedBy}
}

// Commit applies actions in order and returns one result per action. A failed
// action does not stop the batch; later actions may depend on entities
// created by earlier ones.
func (c *Committer) Commit(ctx context.Context, batch Batch, actions []model.CuratorAction) []model.CommitResult {
	results := make([]model.CommitResult, 0, len(actions))
	for _, action := range actions {
		res := c.CommitOne(ctx, batch, action)
		if !res.Success {
			zap.L().Warn("curator: commit action failed",
				zap.String("batch_id", batch.ID),
				zap.String("action_id", action.ID),
				zap.String("entity_type", string(action.EntityType)),
				zap.String("error", res.Error),
			)
		}
		results = append(results, res)
	}
	return results
}

// CommitOne applies a single action within a batch.
func (c *Committer) CommitOne(ctx context.Context, batch Batch, action model.CuratorAction) model.CommitResult {
	if batch.ChangedBy == "" {
		batch.ChangedBy = c.changedBy
	}
	res := model.CommitResult{ActionID: action.ID, EntityType: action.EntityType}

	prev, replayed, err := c.replay(ctx, action.ID)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if replayed {
		return prev
	}

	w, err := c.apply(ctx, batch, action)
	if w != nil {
		res.EntityID = w.row.ID()
		res.Operation = w.op
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

// replay returns the result of an earlier successful commit of the same
// action id. Each action is consumed once, with or without a session.
func (c *Committer) replay(ctx context.Context, actionID string) (model.CommitResult, bool, error) {
	if actionID == "" {
		return model.CommitResult{}, false, nil
	}
	entry, err := c.store.FindAuditByAction(ctx, actionID)
	if model.IsNotFound(err) {
		return model.CommitResult{}, false, nil
	}
	if err != nil {
		return model.CommitResult{}, false, eris.Wrapf(err, "curator: look up action %s", actionID)
	}
	return model.CommitResult{
		ActionID:   actionID,
		EntityType: entry.EntityType,
		Success:    true,
		EntityID:   entry.EntityID,
		Operation:  entry.Operation,
		Replayed:   true,
	}, true, nil
}

// write is one entity mutation waiting for its audit and provenance rows.
type write struct {
	kind    model.EntityKind
	op      model.Operation
	row     model.Row
	old     model.Row
	written map[string]string
	fields  model.FieldList
}

func (c *Committer) apply(ctx context.Context, batch Batch, action model.CuratorAction) (*write, error) {
	kind, err := model.KindOf(action.EntityType)
	if err != nil {
		return nil, err
	}
	actionType := resolveActionType(action, kind)
	if err := checkActionType(actionType, kind); err != nil {
		return nil, err
	}
	if err := validateConfidences(action.Fields); err != nil {
		return nil, err
	}

	if actionType == model.ActionResearchFill {
		if action, err = c.research(ctx, kind, action); err != nil {
			return nil, err
		}
	}

	var w *write
	switch k := kind.(type) {
	case model.CoreKind:
		w, err = c.commitCore(ctx, k, action)
	case model.EnrichmentKind:
		w, err = c.commitEnrichment(ctx, k, action)
	default:
		return nil, eris.Errorf("curator: unhandled entity kind %T", kind)
	}
	if err != nil {
		return w, err
	}

	if err := c.record(ctx, batch, action.ID, w); err != nil {
		return w, err
	}
	c.index(ctx, w)
	return w, nil
}

// resolveActionType fills in a missing action type from the shape of the
// action.
func resolveActionType(action model.CuratorAction, kind model.EntityKind) model.ActionType {
	if action.ActionType != "" {
		return action.ActionType
	}
	if _, ok := kind.(model.EnrichmentKind); ok {
		return model.ActionAddEnrichment
	}
	if action.TargetEntity != nil && action.TargetEntity.ID != "" {
		return model.ActionUpdateField
	}
	return model.ActionCreateEntity
}

// checkActionType rejects unknown action types and combinations with no
// meaning for the entity kind. Enrichments are insert-only.
func checkActionType(t model.ActionType, kind model.EntityKind) error {
	if !t.Valid() {
		return model.Validationf("unknown action_type %q", t)
	}
	switch kind.(type) {
	case model.CoreKind:
		if t == model.ActionAddEnrichment {
			return model.Validationf("add_enrichment is not valid for %s", kind.Type())
		}
	case model.EnrichmentKind:
		if t == model.ActionUpdateField {
			return model.Validationf("update_field is not valid for %s; enrichments cannot be updated", kind.Type())
		}
	}
	return nil
}

func validateConfidences(fields model.FieldList) error {
	for _, f := range fields {
		if !policy.ValidConfidence(f.Confidence) {
			return model.Validationf("field %s confidence %v outside [0,1]", f.Name, f.Confidence)
		}
	}
	return nil
}

// columnValues maps action fields onto writable columns. Null values are
// skipped so they never clear stored data. allowed reports extra non-column
// fields that are consumed elsewhere (parent references).
func columnValues(action model.CuratorAction, hasColumn func(string) bool, allowed map[string]bool) (map[string]string, model.FieldList) {
	values := make(map[string]string, len(action.Fields))
	var used model.FieldList
	for _, f := range action.Fields {
		if allowed[f.Name] {
			continue
		}
		if !hasColumn(f.Name) {
			zap.L().Warn("curator: ignoring unknown field",
				zap.String("entity_type", string(action.EntityType)),
				zap.String("field", f.Name),
			)
			continue
		}
		v, ok := model.ValueString(f.Value)
		if !ok {
			continue
		}
		if policy.NeedsReview(f.Confidence) {
			zap.L().Info("curator: committing unreviewed guess",
				zap.String("entity_type", string(action.EntityType)),
				zap.String("field", f.Name),
				zap.String("bucket", string(policy.BucketFor(f.Confidence))),
				zap.Float64("confidence", f.Confidence),
			)
		}
		values[f.Name] = v
		used = append(used, f)
	}
	return values, used
}

func (c *Committer) commitCore(ctx context.Context, kind model.CoreKind, action model.CuratorAction) (*write, error) {
	var parentFields map[string]bool
	if kind.Parent != nil {
		parentFields = map[string]bool{kind.Parent.NameField: true}
	}
	hasColumn := func(col string) bool {
		return kind.HasColumn(col) || (kind.Parent != nil && col == kind.Parent.IDColumn)
	}
	values, used := columnValues(action, hasColumn, parentFields)

	if kind.Parent != nil && values[kind.Parent.IDColumn] == "" {
		if name := action.Fields.StringValue(kind.Parent.NameField); name != "" {
			parentID, err := c.store.FindEntityIDByName(ctx, kind.Parent.Table, "name", name)
			if err != nil {
				return nil, eris.Wrapf(err, "resolve %s %q", kind.Parent.Type, name)
			}
			values[kind.Parent.IDColumn] = parentID
		}
	}

	if action.TargetEntity != nil && action.TargetEntity.ID != "" {
		return c.updateByID(ctx, kind, action.TargetEntity.ID, values, used)
	}

	key := values[kind.NaturalKey]
	if key == "" {
		return nil, model.Validationf("%s requires %s", kind.Entity, kind.NaturalKey)
	}

	existing, err := c.store.FindEntityByKey(ctx, kind, key)
	if err != nil && !model.IsNotFound(err) {
		return nil, err
	}
	if existing == nil {
		for _, req := range kind.Required() {
			if values[req] == "" {
				return nil, model.Validationf("new %s requires %s", kind.Entity, req)
			}
		}
	}

	row, created, err := c.store.UpsertEntity(ctx, kind, values)
	if err != nil {
		return nil, err
	}

	w := &write{kind: kind, op: model.OperationUpdate, row: row, old: existing, written: values, fields: used}
	if created {
		w.op = model.OperationCreate
		w.old = nil
	}
	return w, nil
}

// updateByID reads the current row first so the audit log carries true old
// values.
func (c *Committer) updateByID(ctx context.Context, kind model.CoreKind, id string, values map[string]string, used model.FieldList) (*write, error) {
	if len(values) == 0 {
		return nil, model.Validationf("update of %s %s has no fields", kind.Entity, id)
	}
	old, err := c.store.GetEntity(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	row, err := c.store.UpdateEntity(ctx, kind, id, values)
	if err != nil {
		return nil, err
	}
	return &write{kind: kind, op: model.OperationUpdate, row: row, old: old, written: values, fields: used}, nil
}

func (c *Committer) commitEnrichment(ctx context.Context, kind model.EnrichmentKind, action model.CuratorAction) (*write, error) {
	parentField := string(kind.ParentType)
	values, used := columnValues(action, kind.HasColumn, map[string]bool{parentField: true, kind.ParentColumn: true})

	for _, req := range kind.Required {
		if values[req] == "" {
			return nil, model.Validationf("%s requires %s", kind.Entity, req)
		}
	}

	parentID, err := c.resolveParent(ctx, kind, action)
	if err != nil {
		return nil, err
	}

	row, err := c.store.InsertEnrichment(ctx, kind, parentID, values)
	if err != nil {
		return nil, err
	}
	return &write{kind: kind, op: model.OperationCreate, row: row, written: values, fields: used}, nil
}

// resolveParent finds the parent of an enrichment by explicit id, or by a
// case-insensitive name lookup. There is no fallback to creating the parent.
func (c *Committer) resolveParent(ctx context.Context, kind model.EnrichmentKind, action model.CuratorAction) (string, error) {
	parentKind, err := model.KindOf(kind.ParentType)
	if err != nil {
		return "", err
	}

	id := action.Fields.StringValue(kind.ParentColumn)
	name := action.Fields.StringValue(string(kind.ParentType))
	if t := action.TargetEntity; t != nil {
		if t.Type != "" && t.Type != kind.ParentType {
			return "", model.Validationf("%s must target a %s, not a %s", kind.Entity, kind.ParentType, t.Type)
		}
		if t.ID != "" {
			id = t.ID
		}
		if t.Name != "" && name == "" {
			name = t.Name
		}
	}

	if id != "" {
		if _, err := c.store.GetEntity(ctx, parentKind, id); err != nil {
			return "", err
		}
		return id, nil
	}
	if name == "" {
		return "", model.Validationf("%s requires a parent %s", kind.Entity, kind.ParentType)
	}
	id, err = c.store.FindEntityIDByName(ctx, kind.ParentTable, "name", name)
	if err != nil {
		return "", eris.Wrapf(err, "resolve %s %q", kind.ParentType, name)
	}
	return id, nil
}

// research replaces the null fields of a research_fill action with
// researched values and turns it into an update or create.
func (c *Committer) research(ctx context.Context, kind model.EntityKind, action model.CuratorAction) (model.CuratorAction, error) {
	core, ok := kind.(model.CoreKind)
	if !ok {
		return action, model.Validationf("research_fill is not supported for %s", action.EntityType)
	}
	if c.researcher == nil {
		return action, model.NewValidationError("research_fill requires a configured research provider")
	}

	var current model.Row
	name := action.Fields.StringValue(core.NameColumn)
	if t := action.TargetEntity; t != nil && t.ID != "" {
		row, err := c.store.GetEntity(ctx, core, t.ID)
		if err != nil {
			return action, err
		}
		current = row
		if n, _ := row[core.NameColumn].(string); n != "" {
			name = n
		}
	}
	if name == "" && action.TargetEntity != nil {
		name = action.TargetEntity.Name
	}
	if name == "" {
		return action, model.Validationf("research_fill on %s needs a target or a %s", core.Entity, core.NameColumn)
	}

	wanted := researchFields(core, action.Fields, current)
	found, err := c.researcher.Fill(ctx, core.Entity, name, wanted)
	if err != nil {
		return action, err
	}

	filled := make(model.FieldList, 0, len(action.Fields)+len(found.Fields))
	for _, f := range action.Fields {
		if _, ok := model.ValueString(f.Value); ok {
			filled = append(filled, f)
		}
	}
	filled = append(filled, found.Fields...)
	if current == nil && filled.StringValue(core.NameColumn) == "" {
		filled = append(filled, model.ExtractedField{
			Name: core.NameColumn, Value: name, Confidence: 1, Source: model.SourceManual,
			SourceSnippet: "research target name",
		})
	}

	action.Fields = filled
	if current != nil {
		action.ActionType = model.ActionUpdateField
	} else {
		action.ActionType = model.ActionCreateEntity
		deriveNaturalKey(&action)
	}
	return action, nil
}

// researchFields lists the fields to research: the action's null fields, or
// every empty column of the current row when the action names none.
func researchFields(kind model.CoreKind, fields model.FieldList, current model.Row) []string {
	var wanted []string
	for _, f := range fields {
		if _, ok := model.ValueString(f.Value); !ok && kind.HasColumn(f.Name) {
			wanted = append(wanted, f.Name)
		}
	}
	if len(wanted) > 0 {
		return wanted
	}
	for _, col := range kind.Columns {
		if col == kind.NaturalKey || col == kind.NameColumn {
			continue
		}
		if current == nil || current[col] == nil {
			wanted = append(wanted, col)
		}
	}
	return wanted
}

// record writes the audit entry and one provenance row per written field.
func (c *Committer) record(ctx context.Context, batch Batch, actionID string, w *write) error {
	now := c.now().UTC()
	entityID := w.row.ID()

	changes := make(map[string]model.FieldChange, len(w.written))
	for col, v := range w.written {
		var old any
		if w.old != nil {
			old = w.old[col]
		}
		changes[col] = model.FieldChange{Old: old, New: v}
	}

	entry := &model.AuditLogEntry{
		ID:           uuid.New().String(),
		BatchID:      batch.ID,
		Operation:    w.op,
		EntityType:   w.kind.Type(),
		EntityID:     entityID,
		FieldChanges: changes,
		FullSnapshot: w.row,
		ChangedBy:    batch.ChangedBy,
		SessionID:    batch.SessionID,
		ActionID:     actionID,
		CreatedAt:    now,
	}
	if err := c.store.AppendAudit(ctx, entry); err != nil {
		return eris.Wrap(err, "curator: append audit")
	}

	prov := make([]model.Provenance, 0, len(w.fields))
	for _, f := range w.fields {
		src := f.Source
		if src == "" {
			src = model.SourceManual
		}
		prov = append(prov, model.Provenance{
			ID:            uuid.New().String(),
			BatchID:       batch.ID,
			EntityType:    w.kind.Type(),
			EntityID:      entityID,
			FieldName:     f.Name,
			Value:         w.written[f.Name],
			Confidence:    f.Confidence,
			Source:        src,
			SourceSnippet: f.SourceSnippet,
			Model:         c.model,
			SessionID:     batch.SessionID,
			CreatedAt:     now,
		})
	}
	sort.SliceStable(prov, func(i, j int) bool { return prov[i].FieldName < prov[j].FieldName })
	return eris.Wrap(c.store.RecordProvenance(ctx, prov), "curator: record provenance")
}

// index embeds an indexed entity so later extractions can match it. Failures
// are logged only.
func (c *Committer) index(ctx context.Context, w *write) {
	t := w.kind.Type()
	if c.embedder == nil || !t.Indexed() {
		return
	}
	text := indexText(w.row)
	if text == "" {
		return
	}

	vec, err := c.embedder.EmbedDocument(ctx, text)
	if err == nil {
		err = c.store.SetEmbedding(ctx, t, w.row.ID(), vec)
	}
	if err != nil {
		zap.L().Warn("curator: index entity failed",
			zap.String("entity_type", string(t)),
			zap.String("entity_id", w.row.ID()),
			zap.Error(err),
		)
	}
}

// indexText is "name. description"; rows without a name are not indexed.
func indexText(row model.Row) string {
	name, _ := row["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if desc, _ := row["description"].(string); strings.TrimSpace(desc) != "" {
		return name + ". " + strings.TrimSpace(desc)
	}
	return name
}
