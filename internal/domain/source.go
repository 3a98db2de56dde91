package domain

// RetrievalMethod says how the artifact bytes are obtained.
type RetrievalMethod string

const (
	RetrievalRemoteFetch  RetrievalMethod = "remote_fetch"
	RetrievalLocalStorage RetrievalMethod = "local_storage"
)

// UnknownLength marks a descriptor whose size is only known after fetching.
const UnknownLength int64 = -1

// SourceDescriptor describes where a book artifact lives and how to serve it.
//
// For remote artifacts RetrievalTarget is the URL. For local artifacts it is the
// storage key (the reference's base name) inside the artifact root.
type SourceDescriptor struct {
	IsRemote        bool            `json:"is_remote"`
	RetrievalTarget string          `json:"retrieval_target"`
	ContentType     string          `json:"content_type"`
	FileName        string          `json:"file_name"`
	ByteLength      int64           `json:"byte_length"`
	RetrievalMethod RetrievalMethod `json:"retrieval_method"`
}
