package ai

// ClassifyPrompt instructs the model to classify one opinion into an
// argument node and propose relations to existing nodes. Inserted values:
// the opinion's stance, the serialized list of existing nodes, and the
// opinion text itself is sent as the user message.
const ClassifyPrompt = `You are analyzing a citizen deliberation on a policy topic.
Classify the given opinion into exactly one argumentative role:
- CLAIM: a central assertion about what should be done or believed
- PREMISE: a reason offered in support of some claim
- EVIDENCE: a factual observation, statistic or citation
- REBUTTAL: a counter to another argument

The author declared the stance: %s

Existing argument nodes in this discussion (id, role, text):
%s

Additionally propose relations from the NEW opinion to existing nodes,
only where a clear argumentative link exists:
- ATTACK: the new opinion contradicts the target's conclusion
- SUPPORT: the new opinion strengthens the target
- UNDERCUT: the new opinion weakens the target's reasoning without
  contradicting its conclusion

Assign every proposed relation a weight between 0 and 1 reflecting how
strong the link is. Do not propose relations to nodes that are merely
about the same subtopic. Respond with the structured output only.`

// LabelClusterPrompt asks for a short display label summarizing a group of
// similar opinions. The samples are sent as the user message.
const LabelClusterPrompt = `The following opinions were grouped together because they are
semantically similar. Produce a short label (at most 5 words, in the
language of the opinions) naming the shared theme. Respond with the label
text only, no quotes, no explanation.`
