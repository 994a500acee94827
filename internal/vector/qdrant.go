package vector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
)

var _ Provider = (*Qdrant)(nil)

// Qdrant is a vector-only backend speaking the Qdrant gRPC API. The
// collection must already exist with the embedding provider's dimensions.
type Qdrant struct {
	client     *qdrant.Client
	collection string
}

// NewQdrant creates an unconfigured Qdrant provider.
func NewQdrant() *Qdrant {
	return &Qdrant{}
}

func (p *Qdrant) Name() string { return "qdrant" }

func (p *Qdrant) AcceptsText() bool { return false }

func (p *Qdrant) RequiredSettings() []string {
	return []string{settings.KeyQdrantURL, settings.KeyQdrantCollection}
}

func (p *Qdrant) Initialize(values map[string]string) error {
	p.collection = values[settings.KeyQdrantCollection]

	raw := values[settings.KeyQdrantURL]
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return apperr.Wrap(apperr.KindConfiguration, err, "parsing qdrant url")
	}

	port := 6334
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return apperr.Wrap(apperr.KindConfiguration, err, "parsing qdrant port")
		}
	}

	// The gRPC connection is lazy, so this makes no network calls.
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: values[settings.KeyQdrantAPIKey],
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return apperr.Wrap(apperr.KindConfiguration, err, "creating qdrant client")
	}
	p.client = client
	return nil
}

func (p *Qdrant) Upsert(ctx context.Context, r Record) (string, error) {
	ids, err := p.BatchUpsert(ctx, []Record{r})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (p *Qdrant) BatchUpsert(ctx context.Context, records []Record) ([]string, error) {
	if len(records) == 0 {
		return []string{}, nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	ids := make([]string, len(records))
	for i, r := range records {
		if len(r.Vector) == 0 {
			return nil, apperr.New(apperr.KindValidation, "record %d has no vector", i)
		}
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = id

		payload := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		payload["listing_id"] = r.ListingID

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: p.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, err, "qdrant upsert")
	}
	return ids, nil
}

func (p *Qdrant) Delete(ctx context.Context, id string) error {
	return p.BatchDelete(ctx, []string{id})
}

func (p *Qdrant) BatchDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}
	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: p.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return apperr.Wrap(apperr.KindProvider, err, "qdrant delete")
	}
	return nil
}

func (p *Qdrant) Query(ctx context.Context, vec []float32, topK int, filter map[string]string) ([]Match, error) {
	limit := uint64(topK)
	points, err := p.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: p.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, err, "qdrant query")
	}

	matches := make([]Match, 0, len(points))
	for _, point := range points {
		m := Match{Score: point.Score, Metadata: make(map[string]any)}
		if point.Id != nil {
			if id := point.Id.GetUuid(); id != "" {
				m.ID = id
			} else {
				m.ID = fmt.Sprintf("%d", point.Id.GetNum())
			}
		}
		for k, v := range point.Payload {
			m.Metadata[k] = extractValue(v)
		}
		m.ListingID = ResolveListingID(m)
		matches = append(matches, m)
	}
	return matches, nil
}

func (p *Qdrant) QueryByText(ctx context.Context, text string, topK int, filter map[string]string) ([]Match, error) {
	return nil, apperr.New(apperr.KindNotSupported, "qdrant does not accept text queries")
}

func buildFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   key,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}
