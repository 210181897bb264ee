package sml

// Message body tags of the SML 1.04 response messages a meter pushes.
const (
	TagOpenResponse    uint32 = 0x00000101
	TagCloseResponse   uint32 = 0x00000201
	TagGetListResponse uint32 = 0x00000701
)

// Message is one SML_Message of a frame.
type Message struct {
	TransactionID []byte
	GroupNo       uint64
	AbortOnError  uint64
	Tag           uint32
	Body          any
}

type OpenResponse struct {
	Codepage   []byte
	ClientID   []byte
	ReqFileID  []byte
	ServerID   []byte
	SmlVersion *uint64
}

type CloseResponse struct {
	GlobalSignature []byte
}

type GetListResponse struct {
	ClientID []byte
	ServerID []byte
	ListName []byte
	ValList  []ListEntry
}

// Values exposes the embedded value list; any body carrying one implements it.
func (r *GetListResponse) Values() []ListEntry {
	return r.ValList
}

// RawBody keeps a body this package does not model.
type RawBody struct {
	Tag uint32
}

// ListEntry is SML_ListEntry. Value is int64, uint64, bool or []byte.
type ListEntry struct {
	ObjName        []byte
	Status         *uint64
	Unit           *uint8
	Scaler         *int8
	Value          any
	ValueSignature []byte
}

func octetsOrNil(e element) ([]byte, bool) {
	switch e.kind {
	case kindOctets:
		return e.octets, true
	case kindOptional:
		return nil, true
	}
	return nil, false
}

// strictMessage decodes a message and rejects anything outside the 1.04
// response layout.
func strictMessage(e element) (Message, error) {
	if e.kind != kindList || len(e.list) != 6 {
		return Message{}, structuref("message is %s of %d elements, want list of 6", e.kind, len(e.list))
	}
	msg, body, err := messageHeader(e)
	if err != nil {
		return Message{}, err
	}
	if e.list[5].kind != kindEndOfMsg {
		return Message{}, structuref("missing end of message marker")
	}

	switch msg.Tag {
	case TagOpenResponse:
		msg.Body, err = strictOpenResponse(body)
	case TagCloseResponse:
		msg.Body, err = strictCloseResponse(body)
	case TagGetListResponse:
		msg.Body, err = strictGetListResponse(body)
	default:
		err = structuref("unsupported message body 0x%08x", msg.Tag)
	}
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func messageHeader(e element) (Message, element, error) {
	var msg Message
	txID, ok := octetsOrNil(e.list[0])
	if !ok {
		return msg, element{}, structuref("transaction id is %s", e.list[0].kind)
	}
	msg.TransactionID = txID
	msg.GroupNo, _ = e.list[1].asUint()
	msg.AbortOnError, _ = e.list[2].asUint()

	choice := e.list[3]
	if choice.kind != kindList || len(choice.list) != 2 {
		return msg, element{}, structuref("message body is not a tagged choice")
	}
	tag, ok := choice.list[0].asUint()
	if !ok {
		return msg, element{}, structuref("message body tag is %s", choice.list[0].kind)
	}
	msg.Tag = uint32(tag)
	return msg, choice.list[1], nil
}

func strictOpenResponse(e element) (*OpenResponse, error) {
	if e.kind != kindList || len(e.list) != 6 {
		return nil, structuref("open response has %d elements", len(e.list))
	}
	res := &OpenResponse{}
	fields := []*[]byte{&res.Codepage, &res.ClientID, &res.ReqFileID, &res.ServerID}
	for i, field := range fields {
		v, ok := octetsOrNil(e.list[i])
		if !ok {
			return nil, structuref("open response field %d is %s", i, e.list[i].kind)
		}
		*field = v
	}
	if v, ok := e.list[5].asUint(); ok {
		res.SmlVersion = &v
	}
	return res, nil
}

func strictCloseResponse(e element) (*CloseResponse, error) {
	if e.kind != kindList || len(e.list) != 1 {
		return nil, structuref("close response has %d elements", len(e.list))
	}
	sig, ok := octetsOrNil(e.list[0])
	if !ok {
		return nil, structuref("close response signature is %s", e.list[0].kind)
	}
	return &CloseResponse{GlobalSignature: sig}, nil
}

func strictGetListResponse(e element) (*GetListResponse, error) {
	if e.kind != kindList || len(e.list) != 7 {
		return nil, structuref("get list response has %d elements", len(e.list))
	}
	res := &GetListResponse{}
	var ok bool
	if res.ClientID, ok = octetsOrNil(e.list[0]); !ok {
		return nil, structuref("client id is %s", e.list[0].kind)
	}
	if res.ServerID, ok = octetsOrNil(e.list[1]); !ok {
		return nil, structuref("server id is %s", e.list[1].kind)
	}
	if res.ListName, ok = octetsOrNil(e.list[2]); !ok {
		return nil, structuref("list name is %s", e.list[2].kind)
	}
	if err := strictTime(e.list[3]); err != nil {
		return nil, err
	}
	valList := e.list[4]
	if valList.kind != kindList {
		return nil, structuref("value list is %s", valList.kind)
	}
	for i, item := range valList.list {
		entry, err := strictListEntry(item)
		if err != nil {
			return nil, structuref("value list entry %d: %v", i, err)
		}
		res.ValList = append(res.ValList, entry)
	}
	return res, nil
}

// strictTime accepts an absent time, or SML_Time as choice of secIndex/timestamp.
func strictTime(e element) error {
	switch e.kind {
	case kindOptional:
		return nil
	case kindList:
		if len(e.list) == 2 && e.list[0].kind == kindUint && (e.list[1].kind == kindUint || e.list[1].kind == kindList) {
			return nil
		}
	}
	return structuref("time is %s of %d elements", e.kind, len(e.list))
}

func strictListEntry(e element) (ListEntry, error) {
	if e.kind != kindList || len(e.list) != 7 {
		return ListEntry{}, structuref("list entry is %s of %d elements", e.kind, len(e.list))
	}
	f := e.list
	var entry ListEntry
	if f[0].kind != kindOctets || len(f[0].octets) != 6 {
		return ListEntry{}, structuref("object name is %s of %d bytes", f[0].kind, len(f[0].octets))
	}
	entry.ObjName = f[0].octets

	switch f[1].kind {
	case kindOptional:
	case kindUint:
		status := f[1].u
		entry.Status = &status
	default:
		return ListEntry{}, structuref("status is %s", f[1].kind)
	}

	if err := strictTime(f[2]); err != nil {
		return ListEntry{}, err
	}

	switch f[3].kind {
	case kindOptional:
	case kindUint:
		if f[3].u > 0xff {
			return ListEntry{}, structuref("unit %d out of range", f[3].u)
		}
		unit := uint8(f[3].u)
		entry.Unit = &unit
	default:
		return ListEntry{}, structuref("unit is %s", f[3].kind)
	}

	switch f[4].kind {
	case kindOptional:
	case kindInt:
		if f[4].i < -128 || f[4].i > 127 {
			return ListEntry{}, structuref("scaler %d out of range", f[4].i)
		}
		scaler := int8(f[4].i)
		entry.Scaler = &scaler
	default:
		return ListEntry{}, structuref("scaler is %s", f[4].kind)
	}

	switch f[5].kind {
	case kindOctets, kindBool, kindInt, kindUint:
		entry.Value = f[5].scalar()
	default:
		return ListEntry{}, structuref("value is %s", f[5].kind)
	}

	sig, ok := octetsOrNil(f[6])
	if !ok {
		return ListEntry{}, structuref("value signature is %s", f[6].kind)
	}
	entry.ValueSignature = sig
	return entry, nil
}

// lenientMessage decodes whatever it can. Unknown bodies become RawBody and
// malformed value list entries are dropped instead of failing the message.
func lenientMessage(e element) (Message, bool) {
	if e.kind != kindList || len(e.list) < 4 {
		return Message{}, false
	}
	msg, body, err := messageHeader(e)
	if err != nil {
		return Message{}, false
	}
	if msg.Tag != TagGetListResponse {
		msg.Body = &RawBody{Tag: msg.Tag}
		return msg, true
	}

	res := &GetListResponse{}
	if body.kind == kindList {
		for _, field := range body.list {
			if field.kind != kindList {
				continue
			}
			// the value list is the first list of list entries
			entries := lenientValList(field)
			if len(entries) > 0 {
				res.ValList = entries
				break
			}
		}
		if len(body.list) > 1 {
			res.ServerID, _ = octetsOrNil(body.list[1])
		}
	}
	msg.Body = res
	return msg, true
}

func lenientValList(e element) []ListEntry {
	var out []ListEntry
	for _, item := range e.list {
		if entry, ok := lenientListEntry(item); ok {
			out = append(out, entry)
		}
	}
	return out
}

func lenientListEntry(e element) (ListEntry, bool) {
	if e.kind != kindList || len(e.list) < 6 {
		return ListEntry{}, false
	}
	f := e.list
	if f[0].kind != kindOctets || len(f[0].octets) != 6 {
		return ListEntry{}, false
	}
	entry := ListEntry{ObjName: f[0].octets}
	if status, ok := f[1].asUint(); ok {
		entry.Status = &status
	}
	if unit, ok := f[3].asUint(); ok && unit <= 0xff {
		u := uint8(unit)
		entry.Unit = &u
	}
	if scaler, ok := f[4].asInt(); ok && scaler >= -128 && scaler <= 127 {
		s := int8(scaler)
		entry.Scaler = &s
	}
	entry.Value = f[5].scalar()
	if entry.Value == nil {
		return ListEntry{}, false
	}
	if len(f) > 6 {
		entry.ValueSignature, _ = octetsOrNil(f[6])
	}
	return entry, true
}
