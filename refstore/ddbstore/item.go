package ddbstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
)

// KeyAttribute is the partition key of the DynamoDB table.
const KeyAttribute = "name"

// item is one reference table as a DynamoDB item.
type item struct {
	Name                  string             `dynamodbav:"name"`
	KeyColumnName         string             `dynamodbav:"keyColumnName"`
	Columns               []columnItem       `dynamodbav:"columns"`
	IsVisible             bool               `dynamodbav:"isVisible"`
	NotifyOnNewMapping    bool               `dynamodbav:"notifyOnNewMapping"`
	SourceLakehouseItemID *string            `dynamodbav:"sourceLakehouseItemId,omitempty"`
	SourceWorkspaceID     *string            `dynamodbav:"sourceWorkspaceId,omitempty"`
	SourceTableName       *string            `dynamodbav:"sourceTableName,omitempty"`
	SourceOneLakeLink     *string            `dynamodbav:"sourceOneLakeLink,omitempty"`
	CreatedAt             time.Time          `dynamodbav:"createdAt"`
	UpdatedAt             time.Time          `dynamodbav:"updatedAt"`
	Rows                  map[string]rowItem `dynamodbav:"rows"`
}

type columnItem struct {
	Name        string  `dynamodbav:"name"`
	DataType    string  `dynamodbav:"dataType"`
	Description *string `dynamodbav:"description,omitempty"`
	Order       int     `dynamodbav:"order"`
}

type rowItem struct {
	Attributes map[string]attrValue `dynamodbav:"attributes"`
	IsNew      bool                 `dynamodbav:"isNew"`
}

// itemOf shares the field mapping of the JSON config document.
func itemOf(t *table.ReferenceTable) item {
	doc := refstore.ConfigOf(t)
	cols := make([]columnItem, len(doc.Columns))
	for i, c := range doc.Columns {
		cols[i] = columnItem(c)
	}
	rows := make(map[string]rowItem, len(t.Rows))
	for _, r := range t.Rows {
		attrs := make(map[string]attrValue, len(r.Attributes))
		for k, v := range r.Attributes {
			if k == table.KeyColumnName {
				continue
			}
			attrs[k] = attrValue{v}
		}
		rows[r.Key] = rowItem{Attributes: attrs, IsNew: r.IsNew}
	}
	return item{
		Name:                  doc.Name,
		KeyColumnName:         doc.KeyColumnName,
		Columns:               cols,
		IsVisible:             doc.IsVisible,
		NotifyOnNewMapping:    doc.NotifyOnNewMapping,
		SourceLakehouseItemID: doc.SourceLakehouseItemID,
		SourceWorkspaceID:     doc.SourceWorkspaceID,
		SourceTableName:       doc.SourceTableName,
		SourceOneLakeLink:     doc.SourceOneLakeLink,
		CreatedAt:             doc.CreatedAt,
		UpdatedAt:             doc.UpdatedAt,
		Rows:                  rows,
	}
}

func (it item) table() *table.ReferenceTable {
	cols := make([]refstore.ColumnDocument, len(it.Columns))
	for i, c := range it.Columns {
		cols[i] = refstore.ColumnDocument(c)
	}
	t := refstore.ConfigDocument{
		Name:                  it.Name,
		KeyColumnName:         it.KeyColumnName,
		Columns:               cols,
		IsVisible:             it.IsVisible,
		NotifyOnNewMapping:    it.NotifyOnNewMapping,
		SourceLakehouseItemID: it.SourceLakehouseItemID,
		SourceWorkspaceID:     it.SourceWorkspaceID,
		SourceTableName:       it.SourceTableName,
		SourceOneLakeLink:     it.SourceOneLakeLink,
		CreatedAt:             it.CreatedAt,
		UpdatedAt:             it.UpdatedAt,
	}.Table()

	rows := make(refstore.RowsDocument, len(it.Rows))
	for key, r := range it.Rows {
		attrs := make(table.Attributes, len(r.Attributes))
		for k, v := range r.Attributes {
			attrs[k] = v.Value
		}
		rows[key] = attrs
	}
	t.Rows = rows.Rows()
	for i := range t.Rows {
		t.Rows[i].IsNew = it.Rows[t.Rows[i].Key].IsNew
	}
	return t
}

// attrValue bridges table.Value to DynamoDB attribute values.
type attrValue struct {
	table.Value
}

var (
	_ attributevalue.Marshaler   = attrValue{}
	_ attributevalue.Unmarshaler = (*attrValue)(nil)
)

func (v attrValue) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return toAttributeValue(v.Value), nil
}

func (v *attrValue) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	val, err := fromAttributeValue(av)
	if err != nil {
		return err
	}
	v.Value = val
	return nil
}

func toAttributeValue(v table.Value) types.AttributeValue {
	switch v.Kind() {
	case table.KindString:
		s, _ := v.AsString()
		return &types.AttributeValueMemberS{Value: s}
	case table.KindNumber:
		n, _ := v.AsNumber()
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(n, 'g', -1, 64)}
	case table.KindBool:
		b, _ := v.AsBool()
		return &types.AttributeValueMemberBOOL{Value: b}
	case table.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]types.AttributeValue, len(m))
		for k, e := range m {
			out[k] = toAttributeValue(e)
		}
		return &types.AttributeValueMemberM{Value: out}
	case table.KindList:
		l, _ := v.AsList()
		out := make([]types.AttributeValue, len(l))
		for i, e := range l {
			out[i] = toAttributeValue(e)
		}
		return &types.AttributeValueMemberL{Value: out}
	default:
		return &types.AttributeValueMemberNULL{Value: true}
	}
}

func fromAttributeValue(av types.AttributeValue) (table.Value, error) {
	switch av := av.(type) {
	case nil, *types.AttributeValueMemberNULL:
		return table.Null(), nil
	case *types.AttributeValueMemberS:
		return table.String(av.Value), nil
	case *types.AttributeValueMemberN:
		n, err := strconv.ParseFloat(av.Value, 64)
		if err != nil {
			return table.Value{}, fmt.Errorf("number attribute %q: %w", av.Value, err)
		}
		return table.Number(n), nil
	case *types.AttributeValueMemberBOOL:
		return table.Bool(av.Value), nil
	case *types.AttributeValueMemberM:
		m := make(map[string]table.Value, len(av.Value))
		for k, e := range av.Value {
			v, err := fromAttributeValue(e)
			if err != nil {
				return table.Value{}, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = v
		}
		return table.Map(m), nil
	case *types.AttributeValueMemberL:
		l := make([]table.Value, len(av.Value))
		for i, e := range av.Value {
			v, err := fromAttributeValue(e)
			if err != nil {
				return table.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			l[i] = v
		}
		return table.List(l...), nil
	case *types.AttributeValueMemberSS:
		l := make([]table.Value, len(av.Value))
		for i, s := range av.Value {
			l[i] = table.String(s)
		}
		return table.List(l...), nil
	default:
		return table.Value{}, fmt.Errorf("unsupported attribute value type %T", av)
	}
}
