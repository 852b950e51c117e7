package ice

import (
	"encoding/binary"

	"github.com/pion/stun/v3"
)

// ICE-specific STUN attribute types not defined by pion/stun/v3's core
// set (which covers BINDING/USERNAME/MESSAGE-INTEGRITY/FINGERPRINT/
// XOR-MAPPED-ADDRESS/ERROR-CODE already).
var (
	attrPriority        = stun.AttrType(0x0024)
	attrUseCandidate    = stun.AttrType(0x0025)
	attrICEControlled   = stun.AttrType(0x8029)
	attrICEControlling  = stun.AttrType(0x802A)
)

// priorityAttr sets the PRIORITY attribute (u32).
type priorityAttr uint32

func (p priorityAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, uint32(p))
	m.Add(attrPriority, v)
	return nil
}

func getPriority(m *stun.Message) (uint32, bool) {
	v, err := m.Get(attrPriority)
	if err != nil || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

// useCandidateAttr sets the USE-CANDIDATE attribute (empty value).
type useCandidateAttr struct{}

func (useCandidateAttr) AddTo(m *stun.Message) error {
	m.Add(attrUseCandidate, nil)
	return nil
}

func hasUseCandidate(m *stun.Message) bool {
	return m.Contains(attrUseCandidate)
}

// tieBreakerAttr sets either ICE-CONTROLLING or ICE-CONTROLLED (u64).
type tieBreakerAttr struct {
	controlling bool
	value       uint64
}

func (t tieBreakerAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, t.value)
	if t.controlling {
		m.Add(attrICEControlling, v)
	} else {
		m.Add(attrICEControlled, v)
	}
	return nil
}

func getControlAttr(m *stun.Message) (controlling bool, tieBreaker uint64, present bool) {
	if v, err := m.Get(attrICEControlling); err == nil && len(v) == 8 {
		return true, binary.BigEndian.Uint64(v), true
	}
	if v, err := m.Get(attrICEControlled); err == nil && len(v) == 8 {
		return false, binary.BigEndian.Uint64(v), true
	}
	return false, 0, false
}

// getUsername returns the USERNAME attribute's string value.
func getUsername(m *stun.Message) (string, bool) {
	var u stun.Username
	if err := u.GetFrom(m); err != nil {
		return "", false
	}
	return u.String(), true
}

// getXORMappedAddress returns the mapped address from a binding success
// response.
func getXORMappedAddress(m *stun.Message) (*stunXORAddr, bool) {
	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(m); err != nil {
		return nil, false
	}
	return &stunXORAddr{IP: xorAddr.IP, Port: xorAddr.Port}, true
}

// stunXORAddr is a small value type decoupling callers from pion/stun's
// XORMappedAddress, which needs the transaction id to decode/encode.
type stunXORAddr struct {
	IP   []byte
	Port int
}

const roleConflictCode stun.ErrorCode = stun.CodeRoleConflict
