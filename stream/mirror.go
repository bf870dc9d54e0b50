// Package stream keeps a local record store in step with DynamoDB Streams.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/arbor/store"
)

// ErrNoImage is returned for INSERT and MODIFY records that carry no new
// image. The stream must use the NEW_IMAGE or NEW_AND_OLD_IMAGES view type.
var ErrNoImage = errors.New("arbor: stream record has no new image")

// Tables maps a source table name to the kind it stores.
type Tables interface {
	KindOf(table string) (store.Kind, bool)
}

// Handler applies stream records to the records already resident in a
// store. Records that are not resident are skipped; the store mirrors what
// its owner loaded and nothing more.
//
// The store does no locking, so HandleChanges must not overlap a mutation
// chain on the same store.
type Handler struct {
	store  *store.Store
	tables Tables
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s *store.Store, tables Tables, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		tables: tables,
		logger: logger,
	}
}

// HandleChanges processes a batch of stream records in order. It can be
// passed to lambda.Start.
func (h *Handler) HandleChanges(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.processRecord(record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err
		}
	}
	return nil
}

func (h *Handler) processRecord(record events.DynamoDBEventRecord) error {
	table := tableFromARN(record.EventSourceArn)
	kind, ok := h.tables.KindOf(table)
	if !ok {
		h.logger.Debug("skipping foreign table", "table", table, "eventID", record.EventID)
		return nil
	}

	id := getStringAttr(record.Change.Keys, "id")
	if id == "" {
		return fmt.Errorf("record %s of %s has no id key", record.EventID, table)
	}
	resident, ok := h.store.Get(kind, id)
	if !ok {
		return nil
	}

	switch record.EventName {
	case string(events.DynamoDBOperationTypeRemove):
		h.store.Delete(kind, id)
		h.logger.Info("evicted removed record", "kind", kind, "id", id)
		return nil
	case string(events.DynamoDBOperationTypeInsert), string(events.DynamoDBOperationTypeModify):
	default:
		return fmt.Errorf("record %s: unknown event %q", record.EventID, record.EventName)
	}

	if len(record.Change.NewImage) == 0 {
		return fmt.Errorf("%w: %s %s:%s", ErrNoImage, record.EventName, kind, id)
	}
	item := ConvertImage(record.Change.NewImage)
	rec, err := store.DecodeItem(item)
	if err != nil {
		return fmt.Errorf("decode %s:%s: %w", kind, id, err)
	}
	if rec.Version < resident.Version {
		h.logger.Debug("skipping stale image",
			"kind", kind,
			"id", id,
			"version", rec.Version,
			"resident", resident.Version,
		)
		return nil
	}

	if store.IsDeleted(item) && resident.Alive {
		h.logger.Info("record deleted remotely", "kind", kind, "id", id)
	}
	h.store.Set(kind, id, rec)
	h.logger.Debug("refreshed record", "kind", kind, "id", id, "version", rec.Version)
	return nil
}

// tableFromARN extracts the table name from a stream ARN of the form
// arn:aws:dynamodb:region:account:table/<name>/stream/<label>.
func tableFromARN(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// ConvertImage converts a stream image into the attribute values the
// DynamoDB SDK decodes.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		result[k] = convertAttribute(v)
	}
	return result
}

func convertAttribute(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, len(list))
		for i, item := range list {
			out[i] = convertAttribute(item)
		}
		return &types.AttributeValueMemberL{Value: out}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	default:
		return &types.AttributeValueMemberNULL{Value: true}
	}
}
